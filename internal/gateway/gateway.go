// Package gateway is the HTTP surface of the dialogue gateway.
//
// DESIGN: One Gateway owns every per-process component and passes them to
// handlers explicitly:
//   - composer:   thinking-mode detection and prompt assembly
//   - gate:       global usage gate (minute/hour/day/token windows)
//   - completion: provider call with fixed sampling policy and timeout
//   - limiter:    per-client-IP throttle on chat routes
//   - metrics/tracker: counters for /stats and the JSONL request log
//
// Request flow for every chat transport: validate -> admission check ->
// compose -> complete -> record usage. Usage is recorded only after a
// completion finishes, so rejected and failed calls do not count.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elon-ai/dialogue-gateway/internal/completion"
	"github.com/elon-ai/dialogue-gateway/internal/config"
	"github.com/elon-ai/dialogue-gateway/internal/monitoring"
	"github.com/elon-ai/dialogue-gateway/internal/thinking"
	"github.com/elon-ai/dialogue-gateway/internal/tokens"
	"github.com/elon-ai/dialogue-gateway/internal/usage"
	"github.com/elon-ai/dialogue-gateway/internal/utils"
)

// Gateway serves the chat API.
type Gateway struct {
	cfg        *config.Config
	composer   *thinking.Composer
	gate       *usage.Gate
	completion *completion.Service
	provider   completion.Provider
	counter    *tokens.Counter
	limiter    *clientLimiter
	metrics    *monitoring.MetricsCollector
	tracker    *monitoring.Tracker
	server     *http.Server
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithProvider replaces the OpenAI provider built from config.
func WithProvider(p completion.Provider) Option {
	return func(g *Gateway) { g.provider = p }
}

// WithUsageGate injects a gate, e.g. one with a fake clock.
func WithUsageGate(gate *usage.Gate) Option {
	return func(g *Gateway) { g.gate = gate }
}

// WithComposer injects a composer, e.g. one sharing a prompt watcher.
func WithComposer(c *thinking.Composer) Option {
	return func(g *Gateway) { g.composer = c }
}

// WithTracker injects a telemetry tracker.
func WithTracker(t *monitoring.Tracker) Option {
	return func(g *Gateway) { g.tracker = t }
}

// New wires a gateway from cfg. Components not supplied through options are
// built from cfg.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	g := &Gateway{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}

	if g.composer == nil {
		prompts, err := thinking.LoadPrompts(cfg.Prompts.Dir)
		if err != nil {
			return nil, fmt.Errorf("load prompts: %w", err)
		}
		g.composer = thinking.NewComposer(thinking.DefaultClassifier(), prompts)
	}
	if g.gate == nil {
		g.gate = usage.NewGate(cfg.Usage)
	}
	if g.provider == nil {
		if strings.TrimSpace(cfg.Provider.APIKey) == "" {
			log.Warn().Msg("OPENAI_API_KEY is not set; chat requests will fail at the provider")
		}
		g.provider = completion.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.BaseURL, cfg.Provider.Model)
	}
	if g.tracker == nil {
		tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
			Enabled:     cfg.Monitoring.TelemetryEnabled,
			LogPath:     cfg.Monitoring.TelemetryPath,
			LogToStdout: cfg.Monitoring.TelemetryStdout,
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		g.tracker = tracker
	}

	g.completion = completion.NewService(g.provider, cfg.Provider.Timeout)
	g.counter = tokens.NewCounter(g.provider.Model(), cfg.Monitoring.ExactTokenCount)
	g.limiter = newClientLimiter(cfg.Server.ClientRateLimit)
	g.metrics = monitoring.NewMetricsCollector()

	g.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           g.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	return g, nil
}

// Handler returns the full middleware-wrapped router.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	g.setupRoutes(mux)
	return withRequestID(g.withCORS(g.withRecovery(mux)))
}

func (g *Gateway) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", g.handleRoot)
	mux.HandleFunc("GET /health", g.handleHealth)

	mux.HandleFunc("POST /api/chat", g.throttled(g.handleChat))
	mux.HandleFunc("POST /api/chat/stream", g.throttled(g.handleChatStream))
	mux.HandleFunc("GET /api/chat/ws", g.throttled(g.handleChatWS))
	mux.HandleFunc("GET /api/modes", g.handleModes)
	mux.HandleFunc("GET /api/usage", g.handleUsage)

	mux.HandleFunc("GET /stats", g.handleStats)
	mux.HandleFunc("GET /usage/dashboard", g.handleUsageDashboard)
}

// Composer returns the prompt composer (shared with the prompt watcher).
func (g *Gateway) Composer() *thinking.Composer { return g.composer }

// UsageGate returns the usage gate.
func (g *Gateway) UsageGate() *usage.Gate { return g.gate }

// Metrics returns the operational counters.
func (g *Gateway) Metrics() *monitoring.MetricsCollector { return g.metrics }

// Start listens until Shutdown is called. It returns nil on graceful shutdown.
func (g *Gateway) Start() error {
	log.Info().
		Str("service", config.ServiceName).
		Str("addr", g.server.Addr).
		Str("provider", g.provider.Name()).
		Str("model", g.provider.Model()).
		Bool("api_key_configured", strings.TrimSpace(g.cfg.Provider.APIKey) != "").
		Str("api_key", utils.MaskKey(g.cfg.Provider.APIKey)).
		Bool("exact_token_count", g.counter.Exact()).
		Msg("starting gateway")

	g.tracker.RecordInit(buildInitEvent(g.cfg, g.provider))

	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (g *Gateway) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down gateway")
	err := g.server.Shutdown(ctx)
	_ = g.tracker.Close()
	stats := g.gate.Stats()
	log.Info().
		Int("requests_last_24h", stats.RequestsLast24h).
		Int("tokens_today", stats.TokensToday).
		Dur("uptime", time.Since(g.metrics.StartedAt()).Truncate(time.Second)).
		Msg("gateway stopped")
	return err
}
