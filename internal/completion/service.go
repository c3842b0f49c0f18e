package completion

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
	"github.com/elon-ai/dialogue-gateway/internal/config"
)

// Policy is the sampling configuration applied to every call.
type Policy struct {
	MaxTokens        int
	Temperature      float64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// DefaultPolicy returns the cost-bounding policy constants.
func DefaultPolicy() Policy {
	return Policy{
		MaxTokens:        config.MaxOutputTokens,
		Temperature:      config.Temperature,
		PresencePenalty:  config.PresencePenalty,
		FrequencyPenalty: config.FrequencyPenalty,
	}
}

// Response is a finished non-streaming answer.
type Response struct {
	Content     string
	ModeSummary string
	Usage       chat.Usage
}

// Service wraps a Provider with the fixed policy and timeout.
type Service struct {
	provider Provider
	policy   Policy
	timeout  time.Duration
}

// NewService creates a service. A non-positive timeout uses the default.
func NewService(provider Provider, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = config.DefaultProviderTimeout
	}
	return &Service{provider: provider, policy: DefaultPolicy(), timeout: timeout}
}

// Provider returns the wrapped provider.
func (s *Service) Provider() Provider { return s.provider }

// Timeout returns the non-streaming bound.
func (s *Service) Timeout() time.Duration { return s.timeout }

func (s *Service) request(messages []chat.Message) *Request {
	return &Request{
		Messages:         messages,
		MaxTokens:        s.policy.MaxTokens,
		Temperature:      s.policy.Temperature,
		PresencePenalty:  s.policy.PresencePenalty,
		FrequencyPenalty: s.policy.FrequencyPenalty,
	}
}

type completeResult struct {
	completion *Completion
	err        error
}

// GetResponse issues one non-streaming call. It stops waiting after the
// configured timeout and returns ErrTimeout; other failures are *ProviderError.
func (s *Service) GetResponse(ctx context.Context, messages []chat.Message, mode chat.Mode) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan completeResult, 1)
	go func() {
		c, err := s.provider.Complete(ctx, s.request(messages))
		done <- completeResult{completion: c, err: err}
	}()

	var res completeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			log.Warn().Dur("timeout", s.timeout).Str("model", s.provider.Model()).Msg("completion timed out")
			return nil, ErrTimeout
		}
		if errors.Is(res.err, context.Canceled) {
			return nil, res.err
		}
		pe := asProviderError(res.err)
		log.Error().Err(pe.Err).Int("status", pe.StatusCode).Str("model", s.provider.Model()).Msg("completion failed")
		return nil, pe
	}

	usage := res.completion.Usage
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	log.Info().
		Int("chars", len([]rune(res.completion.Content))).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Msg("completion received")

	return &Response{
		Content:     res.completion.Content,
		ModeSummary: ModeSummary(mode),
		Usage:       usage,
	}, nil
}

// GetResponseStream returns a lazy, single-use sequence of content fragments.
// A failure ends the sequence with ("", *ProviderError) after any fragments
// already yielded. There is no overall timeout; cancel ctx to stop early.
func (s *Service) GetResponseStream(ctx context.Context, messages []chat.Message, mode chat.Mode) iter.Seq2[string, error] {
	var consumed atomic.Bool
	return func(yield func(string, error) bool) {
		if consumed.Swap(true) {
			yield("", ErrStreamConsumed)
			return
		}

		log.Debug().Str("mode", string(mode)).Str("model", s.provider.Model()).Msg("completion stream started")

		fragments := 0
		for fragment, err := range s.provider.Stream(ctx, s.request(messages)) {
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					pe := asProviderError(err)
					log.Error().Err(pe.Err).Int("fragments", fragments).Msg("completion stream failed")
					err = pe
				}
				yield("", err)
				return
			}
			fragments++
			if !yield(fragment, nil) {
				log.Debug().Int("fragments", fragments).Msg("completion stream abandoned by consumer")
				return
			}
		}
		log.Debug().Int("fragments", fragments).Msg("completion stream finished")
	}
}
