package thinking

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
	"github.com/elon-ai/dialogue-gateway/internal/config"
)

// Composition is the provider-ready message list and the mode it was built for.
type Composition struct {
	Messages []chat.Message
	Mode     chat.Mode
}

// Composer builds layered prompts. Safe for concurrent use; prompt texts can
// be swapped at runtime with SetPrompts.
type Composer struct {
	classifier   *Classifier
	prompts      atomic.Pointer[PromptSet]
	historyLimit int
}

// NewComposer creates a composer. Nil arguments fall back to the embedded data.
func NewComposer(classifier *Classifier, prompts *PromptSet) *Composer {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	c := &Composer{classifier: classifier, historyLimit: config.HistoryLimit}
	c.prompts.Store(prompts)
	return c
}

// Classifier returns the classifier used for auto selection.
func (c *Composer) Classifier() *Classifier { return c.classifier }

// Prompts returns the current prompt generation.
func (c *Composer) Prompts() *PromptSet { return c.prompts.Load() }

// SetPrompts replaces the prompt generation used by later Compose calls.
func (c *Composer) SetPrompts(p *PromptSet) { c.prompts.Store(p) }

// ResolveMode runs the classifier for auto selectors and returns any other
// selector unchanged.
func (c *Composer) ResolveMode(userMessage string, selector chat.Mode) chat.Mode {
	if selector.IsSelectorAuto() {
		return c.classifier.DetectMode(userMessage)
	}
	return selector
}

// Compose returns the system prompt, at most the last historyLimit history
// entries in order, and the user message last.
func (c *Composer) Compose(userMessage string, selector chat.Mode, history []chat.Message) Composition {
	mode := c.ResolveMode(userMessage, selector)

	if len(history) > c.historyLimit {
		history = history[len(history)-c.historyLimit:]
	}

	msgs := make([]chat.Message, 0, len(history)+2)
	msgs = append(msgs, chat.Message{Role: chat.RoleSystem, Content: c.Prompts().SystemPrompt(mode)})
	for _, h := range history {
		msgs = append(msgs, chat.Message{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, chat.Message{Role: chat.RoleUser, Content: userMessage})

	log.Debug().
		Str("selector", string(selector)).
		Str("mode", string(mode)).
		Int("history", len(history)).
		Msg("thinking mode applied")

	return Composition{Messages: msgs, Mode: mode}
}
