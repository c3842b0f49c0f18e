// Package chat defines the conversation types shared by the thinking,
// completion and gateway packages.
//
// DESIGN: Kept dependency-free so every other package can import it
// without creating cycles.
package chat

import "time"

// =============================================================================
// THINKING MODES
// =============================================================================

// Mode is a thinking-mode tag. Values outside the known set are allowed and
// behave like ModeStandard when composing prompts.
type Mode string

const (
	ModeAuto            Mode = "auto"
	ModeStandard        Mode = "standard"
	ModeFirstPrinciples Mode = "first_principles"
	ModeStrategy        Mode = "strategy"
	ModeLife            Mode = "life"
)

// IsSelectorAuto reports whether m asks for keyword-based detection.
// Empty, "auto" and "standard" all resolve through the classifier.
func (m Mode) IsSelectorAuto() bool {
	return m == "" || m == ModeAuto || m == ModeStandard
}

// =============================================================================
// MESSAGES
// =============================================================================

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the accepted roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single conversation entry.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Usage holds provider-reported token counters for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
