// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// Usage ceilings live in internal/usage (DefaultLimits) so the gate can be
// constructed without importing config.
package config

import "time"

// =============================================================================
// SERVICE IDENTITY
// =============================================================================

// ServiceName is reported by the health endpoint.
const ServiceName = "elon-ai-backend"

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "1.0.0"

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token.
// Used for rough token counting when exact counts aren't available.
const TokenEstimateRatio = 4

// StreamTokenEstimate is recorded against the daily budget for every
// completed stream. The provider does not report usage for streams.
const StreamTokenEstimate = 500

// =============================================================================
// COMPLETION POLICY
// =============================================================================

// DefaultModel is the provider model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// MaxOutputTokens caps every completion.
const MaxOutputTokens = 800

// Temperature is the fixed sampling temperature.
const Temperature = 0.7

// PresencePenalty is the fixed presence penalty.
const PresencePenalty = 0.4

// FrequencyPenalty is the fixed frequency penalty.
const FrequencyPenalty = 0.2

// DefaultProviderTimeout bounds a non-streaming completion.
const DefaultProviderTimeout = 60 * time.Second

// =============================================================================
// PROMPT COMPOSITION
// =============================================================================

// HistoryLimit is how many trailing history entries are forwarded.
const HistoryLimit = 10

// MinMessageLength and MaxMessageLength bound the inbound message, in characters.
const (
	MinMessageLength = 1
	MaxMessageLength = 2000
)

// DefaultPromptWatchDebounce coalesces rapid saves of prompt override files.
const DefaultPromptWatchDebounce = 500 * time.Millisecond

// =============================================================================
// RATE LIMITING
// =============================================================================

// DefaultClientRateLimit is chat requests per minute per client IP.
const DefaultClientRateLimit = 20

// MaxRateLimitBuckets prevents memory exhaustion from too many IP buckets.
const MaxRateLimitBuckets = 10000

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultPort is the HTTP listen port.
const DefaultPort = 8000

// DefaultReadTimeout is the HTTP server read timeout.
const DefaultReadTimeout = 30 * time.Second

// DefaultServerWriteTimeout for HTTP server (safe for streaming).
const DefaultServerWriteTimeout = 10 * time.Minute

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 15 * time.Second

// MaxRequestBodySize is the maximum allowed request body (1MB).
const MaxRequestBodySize = 1 << 20

// =============================================================================
// MONITORING
// =============================================================================

// DefaultTelemetryPath is where request events are appended when enabled.
const DefaultTelemetryPath = "logs/requests.jsonl"

// DefaultLogLevel is the zerolog level when neither config nor DEBUG set one.
const DefaultLogLevel = "info"
