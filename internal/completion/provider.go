// Package completion mediates calls to the remote chat-completion provider.
//
// DESIGN: The provider is an opaque request/response/stream contract
// (Provider). Service layers the fixed sampling policy, the non-streaming
// timeout and error classification on top of it:
//   - GetResponse:       one-shot completion bounded by a timeout
//   - GetResponseStream: lazy fragment sequence, no overall timeout
//
// Nothing here retries. Retry policy belongs to the caller.
package completion

import (
	"context"
	"iter"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
)

// Request is one completion call.
type Request struct {
	Messages         []chat.Message
	MaxTokens        int
	Temperature      float64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// Completion is a finished non-streaming response.
type Completion struct {
	Content string
	Usage   chat.Usage
}

// Provider is the remote completion API.
//
// Stream must not contact the provider until the sequence is ranged over,
// must stop and release its connection when the consumer stops early, and
// reports a failure as a final ("", err) pair.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req *Request) (*Completion, error)
	Stream(ctx context.Context, req *Request) iter.Seq2[string, error]
}
