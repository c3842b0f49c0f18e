package usage

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	retention       = 24 * time.Hour
	snapshotRecords = 50
)

// Gate tracks completed requests and admits or rejects new ones.
// Safe for concurrent use; no lock is held outside its own methods.
type Gate struct {
	limits Limits
	now    func() time.Time

	mu          sync.Mutex
	records     []Record
	dailyTokens int
	lastReset   time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a gate with the given ceilings.
func NewGate(limits Limits, opts ...Option) *Gate {
	g := &Gate{
		limits: limits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.lastReset = g.now()
	return g
}

// Limits returns the configured ceilings.
func (g *Gate) Limits() Limits { return g.limits }

// Check sweeps expired state and evaluates the ceilings in order.
func (g *Gate) Check() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweepLocked(now)

	if g.countSinceLocked(now, time.Minute) >= g.limits.PerMinute {
		wait := g.retryAfterLocked(now)
		return Decision{
			Window:     WindowMinute,
			RetryAfter: wait,
			Reason:     fmt.Sprintf(reasonMinute, g.limits.PerMinute, int(wait/time.Second)),
		}
	}
	if g.countSinceLocked(now, time.Hour) >= g.limits.PerHour {
		return Decision{Window: WindowHour, Reason: fmt.Sprintf(reasonHour, g.limits.PerHour)}
	}
	if g.countSinceLocked(now, retention) >= g.limits.PerDay {
		return Decision{Window: WindowDay, Reason: fmt.Sprintf(reasonDay, g.limits.PerDay)}
	}
	if g.dailyTokens >= g.limits.TokensPerDay {
		return Decision{Window: WindowTokens, Reason: fmt.Sprintf(reasonTokens, g.limits.TokensPerDay)}
	}
	return Decision{Allowed: true}
}

// CanMakeRequest is Check reduced to (allowed, reason).
func (g *Gate) CanMakeRequest() (bool, string) {
	d := g.Check()
	return d.Allowed, d.Reason
}

// RecordRequest appends a completed request. Negative counts are recorded as 0.
func (g *Gate) RecordRequest(tokens int) {
	if tokens < 0 {
		tokens = 0
	}

	g.mu.Lock()
	g.records = append(g.records, Record{Timestamp: g.now(), Tokens: tokens})
	g.dailyTokens += tokens
	daily := g.dailyTokens
	g.mu.Unlock()

	log.Info().
		Int("tokens", tokens).
		Int("daily_tokens", daily).
		Int("daily_limit", g.limits.TokensPerDay).
		Msg("usage recorded")
}

// Stats reports per-window counts after sweeping.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweepLocked(now)
	return g.statsLocked(now)
}

// Snapshot returns stats plus the most recent records for display.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweepLocked(now)

	n := min(len(g.records), snapshotRecords)
	recent := make([]Record, 0, n)
	for i := len(g.records) - 1; i >= len(g.records)-n; i-- {
		recent = append(recent, g.records[i])
	}
	return Snapshot{
		Stats:     g.statsLocked(now),
		LastReset: g.lastReset,
		Recent:    recent,
	}
}

func (g *Gate) statsLocked(now time.Time) Stats {
	return Stats{
		RequestsLastMinute: g.countSinceLocked(now, time.Minute),
		RequestsLastHour:   g.countSinceLocked(now, time.Hour),
		RequestsLast24h:    g.countSinceLocked(now, retention),
		TokensToday:        g.dailyTokens,
		Limits:             g.limits,
	}
}

// sweepLocked drops expired records and resets the token counter on a new date.
func (g *Gate) sweepLocked(now time.Time) {
	cutoff := now.Add(-retention)
	kept := g.records[:0]
	for _, r := range g.records {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	clear(g.records[len(kept):])
	g.records = kept

	if startOfDay(now).After(startOfDay(g.lastReset)) {
		log.Info().Int("tokens", g.dailyTokens).Msg("daily token counter reset")
		g.dailyTokens = 0
		g.lastReset = now
	}
}

// countSinceLocked counts records strictly newer than now-d.
func (g *Gate) countSinceLocked(now time.Time, d time.Duration) int {
	cutoff := now.Add(-d)
	n := 0
	for _, r := range g.records {
		if r.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// retryAfterLocked is one minute minus the age of the newest record, in whole seconds.
func (g *Gate) retryAfterLocked(now time.Time) time.Duration {
	if len(g.records) == 0 {
		return 0
	}
	newest := g.records[0].Timestamp
	for _, r := range g.records[1:] {
		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
	}
	age := now.Sub(newest).Truncate(time.Second)
	wait := time.Minute - age
	if wait < 0 {
		return 0
	}
	return wait
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
