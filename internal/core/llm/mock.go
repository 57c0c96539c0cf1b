package llm

import (
	"context"
	"strings"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

// mockProvider implements the Provider interface for testing purposes and
// keyless dry runs. Any text mentioning an offer to sell is a lead.
type mockProvider struct{}

// NewMockProvider creates a new mock LLM provider.
func NewMockProvider() *mockProvider {
	return &mockProvider{}
}

// Name returns the provider identifier.
func (p *mockProvider) Name() ProviderName {
	return ProviderMock
}

// IsAvailable returns true as mock is always available.
func (p *mockProvider) IsAvailable() bool {
	return true
}

// Classify implements the Provider interface.
func (p *mockProvider) Classify(_ context.Context, items []Item) ([]BatchVerdict, error) {
	var verdicts []BatchVerdict

	for _, item := range items {
		lower := strings.ToLower(item.Text)
		if !strings.Contains(lower, "прода") && !strings.Contains(lower, "sell") {
			continue
		}

		category := domain.CategoryProperty
		if strings.Contains(lower, "авто") || strings.Contains(lower, "car") {
			category = domain.CategoryVehicle
		}

		verdicts = append(verdicts, BatchVerdict{
			Index: item.Index,
			Verdict: domain.Verdict{
				IsLead:     true,
				Reason:     "mock classification",
				Confidence: mockConfidenceScore,
				Category:   category,
			},
		})
	}

	return verdicts, nil
}

// Ensure mockProvider implements Provider interface.
var _ Provider = (*mockProvider)(nil)
