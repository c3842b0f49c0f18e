// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes: Total and successful chat requests
//   - rejections:         Validation, per-client throttle and usage-gate vetoes
//   - failures:           Provider timeouts and provider errors
//   - aborted:            Requests whose client disconnected, any transport
//   - streams:            Streams started and streams that ended early
//   - tokens:             Provider-reported (or estimated) input/output tokens
//   - modes:              Requests per resolved thinking mode
//
// Counters reset with the process, like the usage gate itself.
package monitoring

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	// Request counters
	requests    atomic.Int64
	successes   atomic.Int64
	invalid     atomic.Int64
	throttled   atomic.Int64
	rateLimited atomic.Int64
	timeouts    atomic.Int64
	providerErr atomic.Int64
	aborted     atomic.Int64

	// Streaming counters
	streams        atomic.Int64
	streamsAborted atomic.Int64

	// Token counters
	totalInputTokens  atomic.Int64
	totalOutputTokens atomic.Int64
	totalTokens       atomic.Int64

	modeMu sync.Mutex
	modes  map[string]int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startedAt: time.Now(),
		modes:     make(map[string]int64),
	}
}

// RecordOutcome records a finished chat request.
func (mc *MetricsCollector) RecordOutcome(outcome Outcome) {
	mc.requests.Add(1)
	switch outcome {
	case OutcomeSuccess:
		mc.successes.Add(1)
	case OutcomeInvalid:
		mc.invalid.Add(1)
	case OutcomeThrottled:
		mc.throttled.Add(1)
	case OutcomeRateLimited:
		mc.rateLimited.Add(1)
	case OutcomeTimeout:
		mc.timeouts.Add(1)
	case OutcomeProviderError:
		mc.providerErr.Add(1)
	case OutcomeAborted:
		mc.aborted.Add(1)
	}
}

// RecordStream records a stream that was started.
func (mc *MetricsCollector) RecordStream() { mc.streams.Add(1) }

// RecordStreamAborted records a started stream whose client went away.
func (mc *MetricsCollector) RecordStreamAborted() { mc.streamsAborted.Add(1) }

// RecordMode records the mode a request resolved to.
func (mc *MetricsCollector) RecordMode(mode string) {
	mc.modeMu.Lock()
	mc.modes[mode]++
	mc.modeMu.Unlock()
}

// RecordAPIUsage records token usage for a completed request.
func (mc *MetricsCollector) RecordAPIUsage(inputTokens, outputTokens, totalTokens int) {
	mc.totalInputTokens.Add(int64(inputTokens))
	mc.totalOutputTokens.Add(int64(outputTokens))
	if totalTokens == 0 {
		totalTokens = inputTokens + outputTokens
	}
	mc.totalTokens.Add(int64(totalTokens))
}

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// Stats returns current metrics as a flat map.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":        mc.requests.Load(),
		"successes":       mc.successes.Load(),
		"rate_limited":    mc.rateLimited.Load(),
		"timeouts":        mc.timeouts.Load(),
		"provider_errors": mc.providerErr.Load(),
		"streams":         mc.streams.Load(),
	}
}

// TokenStats returns token metrics.
func (mc *MetricsCollector) TokenStats() TokenStatsData {
	return TokenStatsData{
		InputTokens:  mc.totalInputTokens.Load(),
		OutputTokens: mc.totalOutputTokens.Load(),
		TotalTokens:  mc.totalTokens.Load(),
	}
}

// ModeStats returns per-mode request counts sorted by mode name.
func (mc *MetricsCollector) ModeStats() []ModeCount {
	mc.modeMu.Lock()
	out := make([]ModeCount, 0, len(mc.modes))
	for m, n := range mc.modes {
		out = append(out, ModeCount{Mode: m, Requests: n})
	}
	mc.modeMu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Mode < out[j].Mode })
	return out
}

// FullStats returns all metrics in a structured format for the /stats endpoint.
// model prices the token totals; pass "" to skip the estimate.
func (mc *MetricsCollector) FullStats(model string) StatsResponse {
	uptime := time.Since(mc.startedAt)
	requests := mc.requests.Load()
	successes := mc.successes.Load()
	tokens := mc.TokenStats()

	resp := StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:          requests,
			Successful:     successes,
			Failed:         requests - successes,
			Invalid:        mc.invalid.Load(),
			Throttled:      mc.throttled.Load(),
			RateLimited:    mc.rateLimited.Load(),
			Timeouts:       mc.timeouts.Load(),
			ProviderErrors: mc.providerErr.Load(),
			Aborted:        mc.aborted.Load(),
		},
		Streams: StreamStats{
			Started: mc.streams.Load(),
			Aborted: mc.streamsAborted.Load(),
		},
		Tokens: tokens,
		Modes:  mc.ModeStats(),
	}

	if model != "" {
		pricing := GetModelPricing(model)
		resp.Cost = &CostStats{
			Model:         model,
			InputPerMTok:  pricing.InputPerMTok,
			OutputPerMTok: pricing.OutputPerMTok,
			EstimatedUSD:  CalculateCost(int(tokens.InputTokens), int(tokens.OutputTokens), pricing),
		}
	}
	return resp
}

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string         `json:"uptime"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartedAt     string         `json:"started_at"`
	Requests      RequestStats   `json:"requests"`
	Streams       StreamStats    `json:"streams"`
	Tokens        TokenStatsData `json:"tokens"`
	Modes         []ModeCount    `json:"modes"`
	Cost          *CostStats     `json:"cost,omitempty"`
}

// RequestStats holds request count metrics.
type RequestStats struct {
	Total          int64 `json:"total"`
	Successful     int64 `json:"successful"`
	Failed         int64 `json:"failed"`
	Invalid        int64 `json:"invalid"`
	Throttled      int64 `json:"throttled"`
	RateLimited    int64 `json:"rate_limited"`
	Timeouts       int64 `json:"timeouts"`
	ProviderErrors int64 `json:"provider_errors"`
	Aborted        int64 `json:"aborted"`
}

// StreamStats holds streaming metrics.
type StreamStats struct {
	Started int64 `json:"started"`
	Aborted int64 `json:"aborted"`
}

// TokenStatsData holds token metrics. Streams contribute the fixed estimate.
type TokenStatsData struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// ModeCount is the number of requests resolved to one mode.
type ModeCount struct {
	Mode     string `json:"mode"`
	Requests int64  `json:"requests"`
}

// CostStats is the estimated spend since start.
type CostStats struct {
	Model         string  `json:"model"`
	InputPerMTok  float64 `json:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok"`
	EstimatedUSD  float64 `json:"estimated_usd"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
