// Package llm provides lead classification backends.
//
// Providers implement a single Classify call over indexed candidate texts
// and return verdicts for leads only; an item without a verdict is not a
// lead. The Registry holds providers in registration order and routes each
// call to the first available one, falling through on failure.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/platform/config"
)

// ProviderName identifies an LLM provider.
type ProviderName string

// Provider name constants.
const (
	ProviderGemini     ProviderName = "gemini"
	ProviderOpenRouter ProviderName = "openrouter"
	ProviderMock       ProviderName = "mock"
)

// Item is one candidate text prepared for classification. Index ties the
// verdict back to the caller's ordering and must be unique within one call.
type Item struct {
	Index     int
	AuthorTag string
	Text      string
	ReplyText string
}

// BatchVerdict pairs a lead verdict with the input index it belongs to.
type BatchVerdict struct {
	Index   int
	Verdict domain.Verdict
}

// Provider defines the interface for classification backends.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// IsAvailable returns true if the provider is configured.
	IsAvailable() bool

	// Classify judges the items and returns verdicts for leads only.
	Classify(ctx context.Context, items []Item) ([]BatchVerdict, error)
}

// Registry errors.
var (
	ErrNoProvidersAvailable = errors.New("no LLM providers available")
	ErrAllProvidersFailed   = errors.New("all LLM providers failed")
	ErrEmptyResponse        = errors.New("empty response from backend")
	ErrCircuitOpen          = errors.New("circuit breaker open")
)

// ErrRateLimited marks failures the caller may retry after waiting.
var ErrRateLimited = errors.New("rate limited")

// RateLimitedError carries the backend-requested wait interval.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
	}

	return "rate limited"
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter returns the wait interval carried by a rate-limit error, or
// zero when the backend did not supply one.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}

	return 0
}

// requestStatus maps a classification outcome onto the metrics status label.
func requestStatus(err error) string {
	switch {
	case err == nil:
		return requestStatusOK
	case errors.Is(err, ErrRateLimited):
		return requestStatusRateLimited
	default:
		return requestStatusError
	}
}

var retryInPattern = regexp.MustCompile(`retry in (\d+(?:\.\d+)?)`)

// parseRetryAfter scrapes a "retry in N" hint out of a backend error message.
func parseRetryAfter(msg string) time.Duration {
	m := retryInPattern.FindStringSubmatch(strings.ToLower(msg))
	if m == nil {
		return 0
	}

	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}

	return time.Duration(secs * float64(time.Second))
}

// Registry routes Classify calls to the first available provider in
// registration order.
type Registry struct {
	providers []Provider
	logger    *zerolog.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register appends a provider. Registration order is priority order.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)

	r.logger.Info().
		Str("provider", string(p.Name())).
		Bool("available", p.IsAvailable()).
		Msg("registered LLM provider")
}

// ProviderCount returns the number of registered providers.
func (r *Registry) ProviderCount() int {
	return len(r.providers)
}

// Classify sends the items to the first available provider, trying the next
// one on failure. The last failure is joined into the returned error, so a
// rate-limit condition stays visible to the caller via errors.Is.
func (r *Registry) Classify(ctx context.Context, items []Item) ([]BatchVerdict, error) {
	var lastErr error

	tried := false

	for _, p := range r.providers {
		if !p.IsAvailable() {
			continue
		}

		tried = true

		verdicts, err := p.Classify(ctx, items)
		if err != nil {
			lastErr = err

			r.logger.Warn().
				Err(err).
				Str("provider", string(p.Name())).
				Msg("LLM provider failed, trying fallback")

			continue
		}

		return verdicts, nil
	}

	if !tried {
		return nil, ErrNoProvidersAvailable
	}

	return nil, errors.Join(ErrAllProvidersFailed, lastErr)
}

// registerProviders registers the configured providers in preference order.
func registerProviders(registry *Registry, cfg *config.Config, logger *zerolog.Logger) {
	gemini := NewGeminiProvider(cfg, logger)
	openRouter := NewOpenRouterProvider(cfg, logger)

	if cfg.LLMProvider == string(ProviderOpenRouter) {
		registry.Register(openRouter)
		registry.Register(gemini)
	} else {
		registry.Register(gemini)
		registry.Register(openRouter)
	}

	// Without any API key the mock keeps dry runs working.
	if cfg.GeminiAPIKey == "" && cfg.OpenRouterAPIKey == "" {
		registry.Register(NewMockProvider())
	}
}

// New creates a classification registry with provider fallback. The
// preferred provider from the config goes first, the other configured one
// second; with no API keys at all the deterministic mock is used.
func New(cfg *config.Config, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	registry := NewRegistry(logger)
	registerProviders(registry, cfg, logger)

	return registry
}
