package llm

import "time"

// Error message templates
const (
	errRateLimiter = "rate limiter error: %w"
)

// HTTP header values
const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
	headerGoogAPIKey  = "x-goog-api-key"
	headerRetryAfter  = "Retry-After"
)

// Error format strings for API clients
const (
	errFmtMarshalRequest = "marshal request: %w"
	errFmtCreateRequest  = "create request: %w"
	errFmtReadResponse   = "read response: %w"
	errFmtDecodeResponse = "decode response: %w"
	errFmtAPIWithMessage = "%w (%d): %s"
	errFmtAPIStatusOnly  = "%w: status %d"
)

// Status label values for request metrics
const (
	requestStatusOK          = "ok"
	requestStatusRateLimited = "rate_limited"
	requestStatusError       = "error"
)

// Rate limiter defaults
const (
	rateLimiterBurst      = 5
	defaultRequestsPerMin = 30
)

// Circuit breaker defaults
const (
	defaultCircuitThreshold = 5
	defaultCircuitTimeout   = time.Minute
)

// Mock provider confidence
const (
	mockConfidenceScore = 0.9
)
