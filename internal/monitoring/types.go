// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - Outcome:       How a chat request ended
//   - RequestEvent:  Telemetry data for each chat request
//   - InitEvent:     Startup configuration snapshot
//   - Config types:  TelemetryConfig
package monitoring

import "time"

// =============================================================================
// OUTCOMES - Used by handlers, metrics and telemetry
// =============================================================================

// Outcome classifies how a chat request ended.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeThrottled     Outcome = "throttled"
	OutcomeRateLimited   Outcome = "rate_limited"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeProviderError Outcome = "provider_error"
	OutcomeAborted       Outcome = "aborted" // client went away before the response finished
)

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// RequestEvent captures one chat request through the gateway.
type RequestEvent struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	ClientIP   string    `json:"client_ip"`
	Transport  string    `json:"transport"` // json, sse, websocket
	Provider   string    `json:"provider"`
	Model      string    `json:"model,omitempty"`
	Selector   string    `json:"selector,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	StatusCode int       `json:"status_code"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`

	MessageChars    int `json:"message_chars"`
	HistoryMessages int `json:"history_messages"`
	Fragments       int `json:"fragments,omitempty"`

	// Local estimate of the composed prompt; never used for admission.
	PromptTokensEstimated int  `json:"prompt_tokens_estimated,omitempty"`
	TokenCountExact       bool `json:"token_count_exact,omitempty"`
	// Usage from the provider, or the fixed estimate for streams.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
	TotalTokens  int `json:"total_tokens,omitempty"`

	LatencyMs int64 `json:"latency_ms"`
}

// InitEvent captures gateway startup configuration.
type InitEvent struct {
	Timestamp            time.Time      `json:"timestamp"`
	Event                string         `json:"event"`
	Version              string         `json:"version"`
	ServerPort           int            `json:"server_port"`
	ServerReadTimeoutMs  int64          `json:"server_read_timeout_ms"`
	ServerWriteTimeoutMs int64          `json:"server_write_timeout_ms"`
	ProviderTimeoutMs    int64          `json:"provider_timeout_ms"`
	Provider             InitProvider   `json:"provider"`
	Limits               map[string]int `json:"limits"`
	ClientRateLimit      int            `json:"client_rate_limit"`
	PromptsDir           string         `json:"prompts_dir,omitempty"`
	PromptsWatch         bool           `json:"prompts_watch"`
	TelemetryPath        string         `json:"telemetry_path,omitempty"`
	Extra                map[string]any `json:"extra,omitempty"`
}

// InitProvider summarizes a provider config without leaking secrets.
type InitProvider struct {
	Name      string `json:"name"`
	Model     string `json:"model,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	HasAPIKey bool   `json:"has_api_key"`
	KeyHint   string `json:"key_hint,omitempty"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}
