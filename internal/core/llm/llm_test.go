package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

type stubProvider struct {
	name      ProviderName
	available bool
	verdicts  []BatchVerdict
	err       error
	calls     int
}

func (s *stubProvider) Name() ProviderName { return s.name }

func (s *stubProvider) IsAvailable() bool { return s.available }

func (s *stubProvider) Classify(_ context.Context, _ []Item) ([]BatchVerdict, error) {
	s.calls++

	return s.verdicts, s.err
}

func newTestRegistry(providers ...Provider) *Registry {
	logger := zerolog.Nop()
	registry := NewRegistry(&logger)

	for _, p := range providers {
		registry.Register(p)
	}

	return registry
}

func TestRegistryFallsThroughOnFailure(t *testing.T) {
	want := []BatchVerdict{{Index: 1, Verdict: domain.Verdict{IsLead: true}}}

	first := &stubProvider{name: ProviderGemini, available: true, err: errors.New("boom")}
	second := &stubProvider{name: ProviderOpenRouter, available: true, verdicts: want}

	verdicts, err := newTestRegistry(first, second).Classify(context.Background(), nil)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}

	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", first.calls, second.calls)
	}

	if len(verdicts) != 1 || verdicts[0].Index != 1 {
		t.Errorf("verdicts = %+v, want fallback provider result", verdicts)
	}
}

func TestRegistrySkipsUnavailable(t *testing.T) {
	first := &stubProvider{name: ProviderGemini, available: false}
	second := &stubProvider{name: ProviderOpenRouter, available: true}

	if _, err := newTestRegistry(first, second).Classify(context.Background(), nil); err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}

	if first.calls != 0 {
		t.Errorf("unavailable provider was called %d times", first.calls)
	}

	if second.calls != 1 {
		t.Errorf("available provider was called %d times, want 1", second.calls)
	}
}

func TestRegistryNoProvidersAvailable(t *testing.T) {
	first := &stubProvider{name: ProviderGemini, available: false}

	_, err := newTestRegistry(first).Classify(context.Background(), nil)
	if !errors.Is(err, ErrNoProvidersAvailable) {
		t.Errorf("err = %v, want ErrNoProvidersAvailable", err)
	}
}

func TestRegistryKeepsRateLimitVisible(t *testing.T) {
	first := &stubProvider{name: ProviderGemini, available: true, err: errors.New("boom")}
	second := &stubProvider{
		name:      ProviderOpenRouter,
		available: true,
		err:       &RateLimitedError{RetryAfter: 30 * time.Second},
	}

	_, err := newTestRegistry(first, second).Classify(context.Background(), nil)

	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Errorf("err = %v, want ErrAllProvidersFailed", err)
	}

	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited to stay visible", err)
	}

	if got := RetryAfter(err); got != 30*time.Second {
		t.Errorf("RetryAfter(err) = %v, want 30s", got)
	}
}

func TestRateLimitedErrorIdentity(t *testing.T) {
	wrapped := fmt.Errorf("chunk 2: %w", &RateLimitedError{RetryAfter: 5 * time.Second})

	if !errors.Is(wrapped, ErrRateLimited) {
		t.Error("wrapped RateLimitedError does not match ErrRateLimited")
	}

	if got := RetryAfter(wrapped); got != 5*time.Second {
		t.Errorf("RetryAfter(wrapped) = %v, want 5s", got)
	}

	if got := RetryAfter(errors.New("boom")); got != 0 {
		t.Errorf("RetryAfter(plain) = %v, want 0", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{
			name:  "whole_seconds",
			input: "Rate limit exceeded. Please retry in 30s.",
			want:  30 * time.Second,
		},
		{
			name:  "fractional_seconds",
			input: "quota exceeded, retry in 2.5s",
			want:  2500 * time.Millisecond,
		},
		{
			name:  "no_hint",
			input: "rate limit exceeded",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseRetryAfter(tt.input)
			if got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestClassifyCompletionError(t *testing.T) {
	apiErr := &openai.APIError{
		HTTPStatusCode: 429,
		Message:        "Rate limit exceeded, retry in 12s",
	}

	mapped := classifyCompletionError(apiErr)
	if !errors.Is(mapped, ErrRateLimited) {
		t.Errorf("429 APIError mapped to %v, want ErrRateLimited", mapped)
	}

	if got := RetryAfter(mapped); got != 12*time.Second {
		t.Errorf("RetryAfter = %v, want 12s", got)
	}

	quotaErr := classifyCompletionError(errors.New("quota exceeded for model"))
	if !errors.Is(quotaErr, ErrRateLimited) {
		t.Errorf("quota error mapped to %v, want ErrRateLimited", quotaErr)
	}

	plain := classifyCompletionError(errors.New("connection refused"))
	if errors.Is(plain, ErrRateLimited) {
		t.Errorf("plain error mapped to rate limit: %v", plain)
	}
}
