package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/leadscan/lead-scan-bot/internal/platform/config"
	"github.com/leadscan/lead-scan-bot/internal/platform/observability"
)

// OpenRouter API constants.
const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

// openRouterProvider implements the Provider interface through the
// OpenAI-compatible OpenRouter chat API.
type openRouterProvider struct {
	cfg         *config.Config
	client      *openai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter

	// Circuit breaker state
	mu                  sync.Mutex
	consecutiveFailures int
	circuitOpenUntil    time.Time
}

// NewOpenRouterProvider creates a new OpenRouter classification provider.
func NewOpenRouterProvider(cfg *config.Config, logger *zerolog.Logger) *openRouterProvider {
	clientCfg := openai.DefaultConfig(cfg.OpenRouterAPIKey)
	clientCfg.BaseURL = openRouterBaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.LLMTimeout}

	rpm := cfg.LLMRequestsPerMin
	if rpm <= 0 {
		rpm = defaultRequestsPerMin
	}

	return &openRouterProvider{
		cfg:         cfg,
		client:      openai.NewClientWithConfig(clientCfg),
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rateLimiterBurst),
	}
}

// Name returns the provider identifier.
func (p *openRouterProvider) Name() ProviderName {
	return ProviderOpenRouter
}

// IsAvailable returns true if the provider is configured and available.
func (p *openRouterProvider) IsAvailable() bool {
	return p.cfg.OpenRouterAPIKey != ""
}

// checkCircuit returns an error while the circuit breaker is open.
func (p *openRouterProvider) checkCircuit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Now().Before(p.circuitOpenUntil) {
		return fmt.Errorf("%w until %s", ErrCircuitOpen, p.circuitOpenUntil.Format(time.RFC3339))
	}

	return nil
}

func (p *openRouterProvider) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.consecutiveFailures = 0
}

func (p *openRouterProvider) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.consecutiveFailures++

	threshold := p.cfg.LLMCircuitThreshold
	if threshold <= 0 {
		threshold = defaultCircuitThreshold
	}

	if p.consecutiveFailures < threshold {
		return
	}

	timeout := p.cfg.LLMCircuitTimeout
	if timeout <= 0 {
		timeout = defaultCircuitTimeout
	}

	p.circuitOpenUntil = time.Now().Add(timeout)

	observability.LLMCircuitBreakerOpens.WithLabelValues(string(ProviderOpenRouter)).Inc()

	p.logger.Warn().
		Int("consecutive_failures", p.consecutiveFailures).
		Time("open_until", p.circuitOpenUntil).
		Msg("circuit breaker opened for OpenRouter")
}

// Classify implements the Provider interface.
func (p *openRouterProvider) Classify(ctx context.Context, items []Item) ([]BatchVerdict, error) {
	if err := p.checkCircuit(); err != nil {
		return nil, err
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf(errRateLimiter, err)
	}

	start := time.Now()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.cfg.OpenRouterModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildClassifyPrompt(items)},
		},
	})

	observability.LLMRequestDuration.WithLabelValues(string(ProviderOpenRouter)).Observe(time.Since(start).Seconds())

	if err != nil {
		mapped := classifyCompletionError(err)
		observability.LLMRequests.WithLabelValues(string(ProviderOpenRouter), requestStatus(mapped)).Inc()

		// Rate limits are retried by the caller and do not open the circuit.
		if !errors.Is(mapped, ErrRateLimited) {
			p.recordFailure()
		}

		return nil, mapped
	}

	p.recordSuccess()
	observability.LLMRequests.WithLabelValues(string(ProviderOpenRouter), requestStatusOK).Inc()

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	content := resp.Choices[0].Message.Content

	p.logger.Debug().
		Int("items", len(items)).
		Int("response_len", len(content)).
		Msg("OpenRouter classification response")

	return ParseVerdicts(content), nil
}

// classifyCompletionError maps backend failures onto the retryable
// rate-limit error when quota exhaustion is signalled.
func classifyCompletionError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &RateLimitedError{RetryAfter: parseRetryAfter(apiErr.Message)}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return &RateLimitedError{RetryAfter: parseRetryAfter(msg)}
	}

	return fmt.Errorf("chat completion: %w", err)
}

// Ensure openRouterProvider implements Provider interface.
var _ Provider = (*openRouterProvider)(nil)
