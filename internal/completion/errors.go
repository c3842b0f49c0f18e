package completion

import (
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"
)

// ErrTimeout is returned when a non-streaming call exceeds its bound.
var ErrTimeout = errors.New("completion timed out")

// ErrStreamConsumed is yielded when a stream is ranged over a second time.
var ErrStreamConsumed = errors.New("completion stream already consumed")

// ProviderError is a failed provider call. Message is safe to show callers;
// the wrapped error carries the detail for logs.
type ProviderError struct {
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return "provider error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// asProviderError classifies err. Existing ProviderErrors pass through;
// OpenAI API errors keep their status and body message.
func asProviderError(err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErrorMessage(apiErr),
			Err:        err,
		}
	}
	return &ProviderError{Message: err.Error(), Err: err}
}

// apiErrorMessage extracts the human-readable message from an API error body.
func apiErrorMessage(apiErr *openai.Error) string {
	raw := apiErr.RawJSON()
	for _, path := range []string{"error.message", "message"} {
		if msg := gjson.Get(raw, path).String(); msg != "" {
			return msg
		}
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	return fmt.Sprintf("upstream returned status %d", apiErr.StatusCode)
}
