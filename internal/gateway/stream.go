package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
	"github.com/elon-ai/dialogue-gateway/internal/config"
	"github.com/elon-ai/dialogue-gateway/internal/monitoring"
)

const sseDone = "data: [DONE]\n\n"

// handleChatStream serves a completion as server-sent events:
//
//	data: {"content":"..."}   one per fragment
//	data: [DONE]              on success only
//	event: error              on mid-stream failure, then the stream ends
//
// Validation and admission failures are reported as ordinary JSON errors
// because no event has been sent yet. A stream that ends without [DONE]
// failed. Usage is recorded with the fixed stream estimate after [DONE].
func (g *Gateway) handleChatStream(w http.ResponseWriter, r *http.Request) {
	trace := g.newTrace(r, transportSSE)

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

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.writeError(w, "streaming not supported", http.StatusInternalServerError)
		trace.finish(http.StatusInternalServerError, monitoring.OutcomeProviderError, "streaming not supported")
		return
	}

	// Streams have no overall deadline; lift the server's WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Debug().Err(err).Str("request_id", trace.ev.RequestID).Msg("clear write deadline")
	}

	comp := g.composer.Compose(req.Message, req.Selector(), req.ConversationHistory)
	trace.observeComposition(comp.Mode, comp.Messages)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	g.metrics.RecordStream()
	log.Info().
		Str("request_id", trace.ev.RequestID).
		Str("mode", string(comp.Mode)).
		Msg("chat stream started")

	for fragment, err := range g.completion.GetResponseStream(r.Context(), comp.Messages, comp.Mode) {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				trace.finish(http.StatusOK, monitoring.OutcomeAborted, "client disconnected")
				return
			}
			_, _, msg := g.classifyCompletionError(err)
			writeSSEError(w, msg)
			flusher.Flush()
			trace.finish(http.StatusOK, monitoring.OutcomeProviderError, msg)
			return
		}
		if err := writeSSEFragment(w, fragment); err != nil {
			// Client is gone; leaving the loop closes the provider stream.
			trace.finish(http.StatusOK, monitoring.OutcomeAborted, err.Error())
			return
		}
		flusher.Flush()
		trace.ev.Fragments++
	}

	_, _ = io.WriteString(w, sseDone)
	flusher.Flush()

	g.recordStreamUsage(trace)
	log.Info().
		Str("request_id", trace.ev.RequestID).
		Int("fragments", trace.ev.Fragments).
		Msg("chat stream finished")
	trace.finish(http.StatusOK, monitoring.OutcomeSuccess, "")
}

// recordStreamUsage charges the fixed estimate; streams do not report usage.
func (g *Gateway) recordStreamUsage(trace *chatTrace) {
	g.gate.RecordRequest(config.StreamTokenEstimate)
	trace.observeUsage(chat.Usage{TotalTokens: config.StreamTokenEstimate})
}

// writeSSEFragment writes one content delta as a JSON data event.
func writeSSEFragment(w io.Writer, fragment string) error {
	payload, err := sjson.SetBytes([]byte(`{}`), "content", fragment)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// writeSSEError writes the terminal error event.
func writeSSEError(w io.Writer, msg string) {
	payload, err := sjson.SetBytes([]byte(`{}`), "error", msg)
	if err != nil {
		payload = []byte(`{"error":"stream error"}`)
	}
	_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
}
