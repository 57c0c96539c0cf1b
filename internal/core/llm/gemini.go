package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/leadscan/lead-scan-bot/internal/platform/config"
	"github.com/leadscan/lead-scan-bot/internal/platform/observability"
)

// Gemini API constants.
const (
	geminiEndpointFormat = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

	geminiStatusQuotaExhausted = "RESOURCE_EXHAUSTED"
)

// Gemini errors.
var ErrGeminiAPIFailure = errors.New("gemini API error")

// geminiProvider implements the Provider interface against the Gemini
// generateContent REST API.
type geminiProvider struct {
	cfg         *config.Config
	httpClient  *http.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter
}

// geminiRequest represents the generateContent request body.
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// geminiResponse represents the generateContent response body.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// geminiErrorResponse represents the Gemini API error envelope.
type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiProvider creates a new Gemini classification provider.
func NewGeminiProvider(cfg *config.Config, logger *zerolog.Logger) *geminiProvider {
	rpm := cfg.LLMRequestsPerMin
	if rpm <= 0 {
		rpm = defaultRequestsPerMin
	}

	return &geminiProvider{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.LLMTimeout,
		},
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rateLimiterBurst),
	}
}

// Name returns the provider identifier.
func (p *geminiProvider) Name() ProviderName {
	return ProviderGemini
}

// IsAvailable returns true if the provider is configured and available.
func (p *geminiProvider) IsAvailable() bool {
	return p.cfg.GeminiAPIKey != ""
}

// Classify implements the Provider interface.
func (p *geminiProvider) Classify(ctx context.Context, items []Item) ([]BatchVerdict, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf(errRateLimiter, err)
	}

	start := time.Now()

	content, err := p.callGeminiAPI(ctx, BuildClassifyPrompt(items))

	observability.LLMRequestDuration.WithLabelValues(string(ProviderGemini)).Observe(time.Since(start).Seconds())
	observability.LLMRequests.WithLabelValues(string(ProviderGemini), requestStatus(err)).Inc()

	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Int("items", len(items)).
		Int("response_len", len(content)).
		Msg("Gemini classification response")

	return ParseVerdicts(content), nil
}

// callGeminiAPI makes the HTTP request to the generateContent endpoint.
func (p *geminiProvider) callGeminiAPI(ctx context.Context, prompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return "", fmt.Errorf(errFmtMarshalRequest, err)
	}

	endpoint := fmt.Sprintf(geminiEndpointFormat, p.cfg.GeminiModel)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf(errFmtCreateRequest, err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerGoogAPIKey, p.cfg.GeminiAPIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf(errFmtReadResponse, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &RateLimitedError{RetryAfter: retryAfterHint(resp, body)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", p.parseAPIError(body, resp.StatusCode)
	}

	return p.extractResponseText(body)
}

// retryAfterHint reads the wait interval from the Retry-After header,
// falling back to the error message text.
func retryAfterHint(resp *http.Response, body []byte) time.Duration {
	if raw := resp.Header.Get(headerRetryAfter); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	var errResp geminiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		return parseRetryAfter(errResp.Error.Message)
	}

	return 0
}

// parseAPIError extracts error details from the API response.
func (p *geminiProvider) parseAPIError(body []byte, statusCode int) error {
	var errResp geminiErrorResponse
	if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error.Message != "" {
		if errResp.Error.Status == geminiStatusQuotaExhausted {
			return &RateLimitedError{RetryAfter: parseRetryAfter(errResp.Error.Message)}
		}

		return fmt.Errorf(errFmtAPIWithMessage, ErrGeminiAPIFailure, statusCode, errResp.Error.Message)
	}

	return fmt.Errorf(errFmtAPIStatusOnly, ErrGeminiAPIFailure, statusCode)
}

// extractResponseText extracts the text content from the Gemini response.
func (p *geminiProvider) extractResponseText(body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf(errFmtDecodeResponse, err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	return sb.String(), nil
}

// Ensure geminiProvider implements Provider interface.
var _ Provider = (*geminiProvider)(nil)
