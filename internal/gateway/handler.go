// HTTP request handling for the dialogue gateway.
//
// DESIGN: Main request flow:
//   - decodeChatRequest(): body limit, JSON decode, validation (422)
//   - admit():             usage gate check before any provider call (429)
//   - handleChat():        compose, complete, record usage, respond
//
// Streaming variants live in stream.go (SSE) and websocket.go.
// Also includes the informational endpoints and telemetry helpers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
	"github.com/elon-ai/dialogue-gateway/internal/completion"
	"github.com/elon-ai/dialogue-gateway/internal/config"
	"github.com/elon-ai/dialogue-gateway/internal/monitoring"
	"github.com/elon-ai/dialogue-gateway/internal/usage"
	"github.com/elon-ai/dialogue-gateway/internal/utils"
)

// errorTypes names the error envelope "type" per status.
var errorTypes = map[int]string{
	http.StatusBadRequest:            "invalid_request_error",
	http.StatusForbidden:             "forbidden",
	http.StatusRequestEntityTooLarge: "invalid_request_error",
	http.StatusUnprocessableEntity:   "validation_error",
	http.StatusTooManyRequests:       "rate_limit_error",
	http.StatusInternalServerError:   "internal_error",
	http.StatusGatewayTimeout:        "timeout_error",
}

// writeError writes a JSON error response. "detail" repeats the message for
// the web frontend, which reads only that field.
func (g *Gateway) writeError(w http.ResponseWriter, msg string, status int) {
	errType, ok := errorTypes[status]
	if !ok {
		errType = "gateway_error"
	}
	g.writeJSON(w, status, map[string]any{
		"error":  map[string]string{"message": msg, "type": errType},
		"detail": msg,
	})
}

// writeJSON writes v without HTML escaping.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := utils.MarshalNoEscape(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// =============================================================================
// INFORMATIONAL ENDPOINTS
// =============================================================================

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Elon-Inspired Strategic Dialogue AI API",
		"docs":    "/api/modes",
		"health":  "/health",
	})
}

// handleHealth returns gateway health status.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": config.ServiceName,
		"version": config.ServiceVersion,
	})
}

func (g *Gateway) handleModes(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string][]ModeInfo{"modes": modeCatalogue})
}

func (g *Gateway) handleUsage(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, g.gate.Stats())
}

// =============================================================================
// CHAT
// =============================================================================

// handleChat serves one non-streaming completion.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	trace := g.newTrace(r, transportJSON)

	req, status, err := g.decodeChatRequest(w, r)
	if err != nil {
		g.writeError(w, err.Error(), status)
		trace.finish(status, monitoring.OutcomeInvalid, err.Error())
		return
	}
	trace.observeRequest(req)

	if !g.admit(w, trace) {
		return
	}

	log.Info().
		Str("request_id", trace.ev.RequestID).
		Str("message", utils.TruncateRunes(req.Message, 50)).
		Msg("chat request")

	comp := g.composer.Compose(req.Message, req.Selector(), req.ConversationHistory)
	trace.observeComposition(comp.Mode, comp.Messages)

	resp, err := g.completion.GetResponse(r.Context(), comp.Messages, comp.Mode)
	if err != nil {
		status, outcome, msg := g.classifyCompletionError(err)
		if outcome == monitoring.OutcomeAborted {
			trace.finish(0, outcome, msg)
			return
		}
		g.writeError(w, msg, status)
		trace.finish(status, outcome, msg)
		return
	}

	g.gate.RecordRequest(resp.Usage.TotalTokens)
	trace.observeUsage(resp.Usage)

	elapsed := time.Since(trace.start).Milliseconds()
	log.Info().
		Str("request_id", trace.ev.RequestID).
		Str("mode", string(comp.Mode)).
		Int64("response_time_ms", elapsed).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("chat response")

	g.writeJSON(w, http.StatusOK, ChatResponse{
		Message:         resp.Content,
		ThinkingProcess: resp.ModeSummary,
		ResponseTimeMs:  elapsed,
		ModeUsed:        string(comp.Mode),
	})
	trace.finish(http.StatusOK, monitoring.OutcomeSuccess, "")
}

// decodeChatRequest reads and validates the body. The returned status is the
// one to report when err is non-nil.
func (g *Gateway) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*ChatRequest, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, http.StatusUnprocessableEntity, &ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	if err := req.Validate(); err != nil {
		return nil, http.StatusUnprocessableEntity, err
	}
	return &req, 0, nil
}

// admit runs the usage gate and writes the 429 when it says no.
func (g *Gateway) admit(w http.ResponseWriter, trace *chatTrace) bool {
	decision := g.gate.Check()
	if decision.Allowed {
		return true
	}

	log.Warn().
		Str("request_id", trace.ev.RequestID).
		Str("window", string(decision.Window)).
		Str("reason", decision.Reason).
		Msg("usage limit exceeded")

	setRetryAfter(w, decision.Err())
	g.writeError(w, decision.Reason, http.StatusTooManyRequests)
	trace.finish(http.StatusTooManyRequests, monitoring.OutcomeRateLimited, decision.Reason)
	return false
}

// setRetryAfter sets Retry-After from a usage.LimitError that knows it.
func setRetryAfter(w http.ResponseWriter, err error) {
	var le *usage.LimitError
	if errors.As(err, &le) && le.RetryAfter > 0 {
		secs := int((le.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
}

// classifyCompletionError maps completion errors to status, outcome and the
// message shown to the caller.
func (g *Gateway) classifyCompletionError(err error) (int, monitoring.Outcome, string) {
	var pe *completion.ProviderError
	switch {
	case errors.Is(err, completion.ErrTimeout):
		return http.StatusGatewayTimeout, monitoring.OutcomeTimeout,
			fmt.Sprintf("Response timeout. Processing took longer than %d seconds.", int(g.completion.Timeout().Seconds()))
	case errors.Is(err, context.Canceled):
		return 0, monitoring.OutcomeAborted, "client disconnected"
	case errors.As(err, &pe):
		return http.StatusInternalServerError, monitoring.OutcomeProviderError, "Internal error: " + pe.Message
	default:
		return http.StatusInternalServerError, monitoring.OutcomeProviderError, "Internal error: " + err.Error()
	}
}

// throttleMessage is the per-client throttle rejection text.
func throttleMessage(perMinute int) string {
	return fmt.Sprintf("Rate limit exceeded: %d per 1 minute", perMinute)
}

// =============================================================================
// TELEMETRY HELPERS
// =============================================================================

const (
	transportJSON      = "json"
	transportSSE       = "sse"
	transportWebSocket = "websocket"
)

// transportFor names the chat transport a route uses.
func transportFor(r *http.Request) string {
	switch {
	case strings.HasSuffix(r.URL.Path, "/ws"):
		return transportWebSocket
	case strings.HasSuffix(r.URL.Path, "/stream"):
		return transportSSE
	default:
		return transportJSON
	}
}

// chatTrace accumulates one chat request's telemetry until finish.
type chatTrace struct {
	g     *Gateway
	start time.Time
	ev    monitoring.RequestEvent
}

func (g *Gateway) newTrace(r *http.Request, transport string) *chatTrace {
	now := time.Now()
	return &chatTrace{
		g:     g,
		start: now,
		ev: monitoring.RequestEvent{
			RequestID: getRequestID(r),
			Timestamp: now,
			Method:    r.Method,
			Path:      r.URL.Path,
			ClientIP:  clientIP(r),
			Transport: transport,
			Provider:  g.provider.Name(),
			Model:     g.provider.Model(),
		},
	}
}

func (t *chatTrace) observeRequest(req *ChatRequest) {
	t.ev.Selector = string(req.Selector())
	t.ev.MessageChars = utf8.RuneCountInString(req.Message)
	t.ev.HistoryMessages = len(req.ConversationHistory)
}

func (t *chatTrace) observeComposition(mode chat.Mode, msgs []chat.Message) {
	t.ev.Mode = string(mode)
	t.ev.PromptTokensEstimated = t.g.counter.CountMessages(msgs)
	t.ev.TokenCountExact = t.g.counter.Exact()
	t.g.metrics.RecordMode(string(mode))
}

func (t *chatTrace) observeUsage(u chat.Usage) {
	t.ev.InputTokens = u.PromptTokens
	t.ev.OutputTokens = u.CompletionTokens
	t.ev.TotalTokens = u.TotalTokens
	t.g.metrics.RecordAPIUsage(u.PromptTokens, u.CompletionTokens, u.TotalTokens)
}

// finish records metrics and the telemetry event.
func (t *chatTrace) finish(status int, outcome monitoring.Outcome, errMsg string) {
	t.ev.StatusCode = status
	t.ev.Outcome = outcome
	t.ev.Error = errMsg
	t.ev.LatencyMs = time.Since(t.start).Milliseconds()
	t.g.metrics.RecordOutcome(outcome)
	if outcome == monitoring.OutcomeAborted && t.ev.Transport != transportJSON {
		t.g.metrics.RecordStreamAborted()
	}
	t.g.tracker.RecordRequest(&t.ev)
}
