// Package tokens estimates token counts for logging and telemetry.
//
// DESIGN: Two strategies:
//   - exact:     tiktoken encoding for the configured model
//   - heuristic: ~TokenEstimateRatio bytes per token (ceil)
//
// The exact encoder needs its BPE ranks, which tiktoken-go fetches on first
// use. If that fails the counter logs once and stays on the heuristic.
// Estimates never feed the usage gate; the gate only sees provider-reported
// counts or the fixed stream estimate.
package tokens

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
	"github.com/elon-ai/dialogue-gateway/internal/config"
)

// Per-message framing overhead for chat models, and the reply primer.
const (
	messageOverhead = 4
	replyPrimer     = 3
)

// Counter estimates tokens. Safe for concurrent use.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter returns a counter for model. With exact=false, or when no
// encoding can be loaded, the byte heuristic is used.
func NewCounter(model string, exact bool) *Counter {
	if !exact {
		return &Counter{}
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		log.Warn().Err(err).Str("model", model).Msg("tiktoken unavailable, using heuristic token estimates")
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// Exact reports whether a tokenizer is loaded.
func (c *Counter) Exact() bool { return c.enc != nil }

// CountText estimates tokens in text.
func (c *Counter) CountText(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return estimate(text)
}

// CountMessages estimates the prompt size of a chat request.
func (c *Counter) CountMessages(msgs []chat.Message) int {
	total := replyPrimer
	for _, m := range msgs {
		total += messageOverhead
		total += c.CountText(string(m.Role))
		total += c.CountText(m.Content)
	}
	return total
}

func estimate(s string) int {
	return (len(s) + config.TokenEstimateRatio - 1) / config.TokenEstimateRatio
}
