package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/elon-ai/dialogue-gateway/internal/config"
	"github.com/elon-ai/dialogue-gateway/internal/monitoring"
	"github.com/elon-ai/dialogue-gateway/internal/utils"
)

const (
	// wsReadTimeout bounds the wait for the client's request frame.
	wsReadTimeout = 30 * time.Second
	// maxCloseReason is the payload limit of a close frame reason.
	maxCloseReason = 123
)

// handleChatWS is the WebSocket variant of the stream. The first client
// frame is a ChatRequest; the server answers with delta frames and then a
// single done or error frame, and closes the connection.
func (g *Gateway) handleChatWS(w http.ResponseWriter, r *http.Request) {
	trace := g.newTrace(r, transportWebSocket)

	// The hijacked connection keeps any server write deadline; streams have none.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: len(g.cfg.Server.AllowedOrigins) == 0,
		OriginPatterns:     g.cfg.Server.AllowedOrigins,
	})
	if err != nil {
		log.Warn().Err(err).Str("request_id", trace.ev.RequestID).Msg("websocket accept failed")
		trace.finish(http.StatusBadRequest, monitoring.OutcomeInvalid, err.Error())
		return
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(config.MaxRequestBodySize)

	ctx := r.Context()

	var req ChatRequest
	readCtx, cancel := context.WithTimeout(ctx, wsReadTimeout)
	err = wsjson.Read(readCtx, conn, &req)
	cancel()
	if err != nil {
		g.wsFail(ctx, conn, trace, http.StatusUnprocessableEntity, monitoring.OutcomeInvalid, "invalid request frame: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		g.wsFail(ctx, conn, trace, http.StatusUnprocessableEntity, monitoring.OutcomeInvalid, err.Error())
		return
	}
	trace.observeRequest(&req)

	// No more client frames are expected; this also cancels ctx when the
	// peer goes away so the provider stream is released.
	ctx = conn.CloseRead(ctx)

	if decision := g.gate.Check(); !decision.Allowed {
		log.Warn().
			Str("request_id", trace.ev.RequestID).
			Str("window", string(decision.Window)).
			Msg("usage limit exceeded")
		g.wsFail(ctx, conn, trace, http.StatusTooManyRequests, monitoring.OutcomeRateLimited, decision.Reason)
		return
	}

	comp := g.composer.Compose(req.Message, req.Selector(), req.ConversationHistory)
	trace.observeComposition(comp.Mode, comp.Messages)
	g.metrics.RecordStream()

	for fragment, err := range g.completion.GetResponseStream(ctx, comp.Messages, comp.Mode) {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				trace.finish(http.StatusSwitchingProtocols, monitoring.OutcomeAborted, "client disconnected")
				return
			}
			_, _, msg := g.classifyCompletionError(err)
			g.wsFail(ctx, conn, trace, http.StatusInternalServerError, monitoring.OutcomeProviderError, msg)
			return
		}
		if err := wsjson.Write(ctx, conn, wsFrame{Type: frameDelta, Content: fragment}); err != nil {
			trace.finish(http.StatusSwitchingProtocols, monitoring.OutcomeAborted, err.Error())
			return
		}
		trace.ev.Fragments++
	}

	done := wsFrame{
		Type:           frameDone,
		ModeUsed:       string(comp.Mode),
		ResponseTimeMs: time.Since(trace.start).Milliseconds(),
	}
	if err := wsjson.Write(ctx, conn, done); err != nil {
		trace.finish(http.StatusSwitchingProtocols, monitoring.OutcomeAborted, err.Error())
		return
	}
	// Close waits for the peer's close frame, so usage is recorded first.
	g.recordStreamUsage(trace)
	trace.finish(http.StatusSwitchingProtocols, monitoring.OutcomeSuccess, "")

	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

// wsFail sends an error frame and closes with a matching close code.
func (g *Gateway) wsFail(ctx context.Context, conn *websocket.Conn, trace *chatTrace, status int, outcome monitoring.Outcome, msg string) {
	_ = wsjson.Write(ctx, conn, wsFrame{Type: frameError, Error: msg, Status: status})

	code := websocket.StatusInternalError
	switch status {
	case http.StatusUnprocessableEntity:
		code = websocket.StatusInvalidFramePayloadData
	case http.StatusTooManyRequests:
		code = websocket.StatusTryAgainLater
	}
	_ = conn.Close(code, utils.TruncateBytes(msg, maxCloseReason))
	trace.finish(status, outcome, msg)
}
