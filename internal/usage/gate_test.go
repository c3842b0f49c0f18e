package usage_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elon-ai/dialogue-gateway/internal/usage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newGate(clock *fakeClock) *usage.Gate {
	return usage.NewGate(usage.DefaultLimits(), usage.WithClock(clock.Now))
}

// =============================================================================
// ADMISSION
// =============================================================================

func TestGate_FreshGateAllows(t *testing.T) {
	g := newGate(newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))

	allowed, reason := g.CanMakeRequest()
	assert.True(t, allowed)
	assert.Empty(t, reason)
	assert.NoError(t, g.Check().Err())
}

func TestGate_MinuteLimit(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	g := newGate(clock)

	for i := 0; i < 10; i++ {
		allowed, _ := g.CanMakeRequest()
		require.True(t, allowed, "request %d should be admitted", i+1)
		g.RecordRequest(100)
	}

	d := g.Check()
	assert.False(t, d.Allowed)
	assert.Equal(t, usage.WindowMinute, d.Window)
	assert.Equal(t, 60*time.Second, d.RetryAfter)
	assert.Equal(t, "レート制限: 1分あたり10回まで。60秒後に再試行してください。", d.Reason)

	clock.Advance(15 * time.Second)
	d = g.Check()
	assert.False(t, d.Allowed)
	assert.Equal(t, 45*time.Second, d.RetryAfter)
	assert.Contains(t, d.Reason, "45秒後")
}

func TestGate_MinuteWindowSlides(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	g := newGate(clock)

	for i := 0; i < 10; i++ {
		g.RecordRequest(0)
	}
	allowed, _ := g.CanMakeRequest()
	require.False(t, allowed)

	// A record exactly 60s old is outside the window.
	clock.Advance(time.Minute)
	allowed, reason := g.CanMakeRequest()
	assert.True(t, allowed)
	assert.Empty(t, reason)
}

func TestGate_HourLimit(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	g := newGate(clock)

	for batch := 0; batch < 5; batch++ {
		for i := 0; i < 10; i++ {
			g.RecordRequest(10)
		}
		clock.Advance(61 * time.Second)
	}

	d := g.Check()
	assert.False(t, d.Allowed)
	assert.Equal(t, usage.WindowHour, d.Window)
	assert.Zero(t, d.RetryAfter)
	assert.Equal(t, "レート制限: 1時間あたり50回まで。しばらくお待ちください。", d.Reason)
}

func TestGate_DailyRequestLimit(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 10, 0, 0, 1, 0, time.UTC))
	g := newGate(clock)

	for i := 0; i < 200; i++ {
		allowed, reason := g.CanMakeRequest()
		require.True(t, allowed, "request %d: %s", i+1, reason)
		g.RecordRequest(1)
		clock.Advance(6 * time.Minute)
	}

	d := g.Check()
	assert.False(t, d.Allowed)
	assert.Equal(t, usage.WindowDay, d.Window)
	assert.Equal(t, "1日の上限（200回）に達しました。明日再試行してください。", d.Reason)
}

func TestGate_TokenLimitAtExactCeiling(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	g := newGate(clock)

	g.RecordRequest(49999)
	allowed, _ := g.CanMakeRequest()
	require.True(t, allowed)

	g.RecordRequest(1)
	d := g.Check()
	assert.False(t, d.Allowed)
	assert.Equal(t, usage.WindowTokens, d.Window)
	assert.Equal(t, "1日のトークン上限（50000）に達しました。", d.Reason)
}

func TestGate_TokenCounterResetsOnNewDate(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC))
	g := newGate(clock)

	g.RecordRequest(50000)
	allowed, _ := g.CanMakeRequest()
	require.False(t, allowed)

	clock.Advance(2 * time.Hour)
	allowed, reason := g.CanMakeRequest()
	assert.True(t, allowed, reason)

	stats := g.Stats()
	assert.Equal(t, 0, stats.TokensToday)
	assert.Equal(t, 1, stats.RequestsLast24h, "request records survive the token reset")
}

func TestGate_CheckOrderPrefersMinute(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	g := newGate(clock)

	for i := 0; i < 10; i++ {
		g.RecordRequest(10000)
	}

	d := g.Check()
	assert.Equal(t, usage.WindowMinute, d.Window, "minute ceiling is checked before tokens")
}

func TestGate_NegativeTokensClampToZero(t *testing.T) {
	g := newGate(newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))

	g.RecordRequest(-25)
	stats := g.Stats()
	assert.Equal(t, 0, stats.TokensToday)
	assert.Equal(t, 1, stats.RequestsLastMinute)
}

func TestDecision_Err(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	g := newGate(clock)
	for i := 0; i < 10; i++ {
		g.RecordRequest(0)
	}
	clock.Advance(20 * time.Second)

	err := g.Check().Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, usage.ErrRateLimited))

	var limitErr *usage.LimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, usage.WindowMinute, limitErr.Window)
	assert.Equal(t, 40*time.Second, limitErr.RetryAfter)
	assert.Equal(t, limitErr.Reason, err.Error())
}

// =============================================================================
// REPORTING
// =============================================================================

func TestGate_StatsWindows(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	g := newGate(clock)

	g.RecordRequest(100) // will be 25h old
	clock.Advance(24*time.Hour + 30*time.Minute)
	g.RecordRequest(200) // 30m old
	clock.Advance(29*time.Minute + 30*time.Second)
	g.RecordRequest(300) // 30s old
	clock.Advance(30 * time.Second)

	stats := g.Stats()
	assert.Equal(t, 1, stats.RequestsLastMinute)
	assert.Equal(t, 2, stats.RequestsLastHour)
	assert.Equal(t, 2, stats.RequestsLast24h)
	assert.Equal(t, usage.DefaultLimits(), stats.Limits)

	snap := g.Snapshot()
	require.Len(t, snap.Recent, 2, "25h-old record is purged")
	assert.Equal(t, 300, snap.Recent[0].Tokens, "newest first")
	assert.Equal(t, 200, snap.Recent[1].Tokens)
}

func TestGate_ConcurrentRecording(t *testing.T) {
	limits := usage.Limits{PerMinute: 1000, PerHour: 1000, PerDay: 1000, TokensPerDay: 1_000_000}
	g := usage.NewGate(limits)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := g.CanMakeRequest(); ok {
				g.RecordRequest(3)
			}
		}()
	}
	wg.Wait()

	stats := g.Stats()
	assert.Equal(t, 100, stats.RequestsLastMinute)
	assert.Equal(t, 300, stats.TokensToday)
}

func TestLimits_Validate(t *testing.T) {
	tests := []struct {
		name    string
		limits  usage.Limits
		wantErr bool
	}{
		{"defaults are valid", usage.DefaultLimits(), false},
		{"zero per minute", usage.Limits{PerMinute: 0, PerHour: 1, PerDay: 1, TokensPerDay: 1}, true},
		{"negative per hour", usage.Limits{PerMinute: 1, PerHour: -1, PerDay: 1, TokensPerDay: 1}, true},
		{"zero per day", usage.Limits{PerMinute: 1, PerHour: 1, PerDay: 0, TokensPerDay: 1}, true},
		{"zero tokens", usage.Limits{PerMinute: 1, PerHour: 1, PerDay: 1, TokensPerDay: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limits.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGate_HandleDashboard(t *testing.T) {
	g := newGate(newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))
	g.RecordRequest(1234)

	w := httptest.NewRecorder()
	g.HandleDashboard(w, httptest.NewRequest(http.MethodGet, "/usage/dashboard", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "Tokens Today")
	assert.Contains(t, body, "1234")
	assert.Contains(t, body, "of 50000")
}
