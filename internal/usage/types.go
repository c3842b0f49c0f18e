// Package usage implements the global admission gate in front of the paid
// completion provider.
//
// DESIGN: A Gate owns a chronological log of completed requests and a daily
// token counter. Every check sweeps records older than 24h and resets the
// token counter when the calendar date has moved past the last reset. A new
// request is admitted only when four ceilings hold, evaluated in a fixed
// order (minute, hour, day, tokens) and short-circuiting on the first one
// that trips.
//
// State lives in process memory. A deployment with several workers needs a
// shared counter store or instance affinity; neither is provided here.
package usage

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// LIMITS
// =============================================================================

const (
	DefaultPerMinute    = 10
	DefaultPerHour      = 50
	DefaultPerDay       = 200
	DefaultTokensPerDay = 50000
)

// Limits holds the four admission ceilings.
type Limits struct {
	PerMinute    int `yaml:"per_minute" json:"per_minute"`
	PerHour      int `yaml:"per_hour" json:"per_hour"`
	PerDay       int `yaml:"per_day" json:"per_day"`
	TokensPerDay int `yaml:"tokens_per_day" json:"tokens_per_day"`
}

// DefaultLimits returns the production ceilings.
func DefaultLimits() Limits {
	return Limits{
		PerMinute:    DefaultPerMinute,
		PerHour:      DefaultPerHour,
		PerDay:       DefaultPerDay,
		TokensPerDay: DefaultTokensPerDay,
	}
}

// Validate checks usage limits.
func (l *Limits) Validate() error {
	if l.PerMinute <= 0 {
		return fmt.Errorf("usage.per_minute must be > 0, got %d", l.PerMinute)
	}
	if l.PerHour <= 0 {
		return fmt.Errorf("usage.per_hour must be > 0, got %d", l.PerHour)
	}
	if l.PerDay <= 0 {
		return fmt.Errorf("usage.per_day must be > 0, got %d", l.PerDay)
	}
	if l.TokensPerDay <= 0 {
		return fmt.Errorf("usage.tokens_per_day must be > 0, got %d", l.TokensPerDay)
	}
	return nil
}

// =============================================================================
// RECORDS AND DECISIONS
// =============================================================================

// Record is one completed request. Never mutated after append.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Tokens    int       `json:"tokens"`
}

// Window names the ceiling that rejected a request.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
	WindowTokens Window = "tokens"
)

// Rejection reasons, shown verbatim to end users.
const (
	reasonMinute = "レート制限: 1分あたり%d回まで。%d秒後に再試行してください。"
	reasonHour   = "レート制限: 1時間あたり%d回まで。しばらくお待ちください。"
	reasonDay    = "1日の上限（%d回）に達しました。明日再試行してください。"
	reasonTokens = "1日のトークン上限（%d）に達しました。"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Reason     string
	Window     Window
	RetryAfter time.Duration // only set for WindowMinute
}

// Err returns nil for an admitted request and a *LimitError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &LimitError{Window: d.Window, Reason: d.Reason, RetryAfter: d.RetryAfter}
}

// ErrRateLimited matches every *LimitError via errors.Is.
var ErrRateLimited = errors.New("usage limit exceeded")

// LimitError is returned when the gate rejects a request.
type LimitError struct {
	Window     Window
	Reason     string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string { return e.Reason }

func (e *LimitError) Unwrap() error { return ErrRateLimited }

// =============================================================================
// REPORTING
// =============================================================================

// Stats is the usage report served at /api/usage.
type Stats struct {
	RequestsLastMinute int    `json:"requests_last_minute"`
	RequestsLastHour   int    `json:"requests_last_hour"`
	RequestsLast24h    int    `json:"requests_last_24h"`
	TokensToday        int    `json:"tokens_today"`
	Limits             Limits `json:"limits"`
}

// Snapshot is a read-only copy of the gate for the dashboard.
type Snapshot struct {
	Stats
	LastReset time.Time
	Recent    []Record // newest first
}
