// Package gateway types - request/response shapes for the dialogue gateway.
//
// DESIGN: Types used by the gateway for:
//   - Inbound chat requests and their validation
//   - Non-streaming and WebSocket response frames
//   - The static mode catalogue
//
// Types are defined here to keep handlers short and the wire contract in one place.
package gateway

import (
	"fmt"
	"unicode/utf8"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
	"github.com/elon-ai/dialogue-gateway/internal/config"
)

// HeaderRequestID carries the per-request correlation ID.
const HeaderRequestID = "X-Request-ID"

// =============================================================================
// CHAT PAYLOADS
// =============================================================================

// ChatRequest is the inbound chat payload shared by all chat transports.
type ChatRequest struct {
	Message             string         `json:"message"`
	ConversationHistory []chat.Message `json:"conversation_history"`
	Mode                string         `json:"mode"`
}

// Selector returns the requested mode, defaulting to standard.
func (r *ChatRequest) Selector() chat.Mode {
	if r.Mode == "" {
		return chat.ModeStandard
	}
	return chat.Mode(r.Mode)
}

// ChatResponse is the non-streaming chat result.
type ChatResponse struct {
	Message         string `json:"message"`
	ThinkingProcess string `json:"thinking_process,omitempty"`
	ResponseTimeMs  int64  `json:"response_time_ms"`
	ModeUsed        string `json:"mode_used"`
}

// ValidationError is a malformed inbound request, rejected before any core logic.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks message bounds (in characters) and history roles.
func (r *ChatRequest) Validate() error {
	n := utf8.RuneCountInString(r.Message)
	if n < config.MinMessageLength {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if n > config.MaxMessageLength {
		return &ValidationError{
			Field:  "message",
			Reason: fmt.Sprintf("must be at most %d characters, got %d", config.MaxMessageLength, n),
		}
	}
	for i, m := range r.ConversationHistory {
		if !m.Role.Valid() {
			return &ValidationError{
				Field:  fmt.Sprintf("conversation_history[%d].role", i),
				Reason: fmt.Sprintf("unknown role %q", m.Role),
			}
		}
	}
	return nil
}

// =============================================================================
// WEBSOCKET FRAMES
// =============================================================================

const (
	frameDelta = "delta"
	frameDone  = "done"
	frameError = "error"
)

// wsFrame is one server-to-client WebSocket message.
type wsFrame struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	ModeUsed       string `json:"mode_used,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms,omitempty"`
	Error          string `json:"error,omitempty"`
	Status         int    `json:"status,omitempty"`
}

// =============================================================================
// MODE CATALOGUE
// =============================================================================

// ModeInfo describes one selectable thinking mode.
type ModeInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// modeCatalogue is what clients may offer as explicit choices. life is
// reachable only through detection.
var modeCatalogue = []ModeInfo{
	{ID: string(chat.ModeStandard), Name: "標準思考", Description: "バランスの取れた分析と提案"},
	{ID: string(chat.ModeFirstPrinciples), Name: "第一原理思考", Description: "問題を根本から分解し、ゼロベースで再構築"},
	{ID: string(chat.ModeStrategy), Name: "戦略シミュレーション", Description: "高インパクト・高リスク戦略の探索"},
}
