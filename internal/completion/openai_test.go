package completion_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
	"github.com/elon-ai/dialogue-gateway/internal/completion"
)

// =============================================================================
// MOCK UPSTREAM
// =============================================================================

func chunkJSON(content string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, content)
}

func writeSSE(w http.ResponseWriter, data string) {
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func newProvider(t *testing.T, srv *httptest.Server) *completion.OpenAIProvider {
	t.Helper()
	return completion.NewOpenAIProvider("sk-test", srv.URL, "gpt-4o-mini", option.WithHTTPClient(srv.Client()))
}

func testRequest() *completion.Request {
	return &completion.Request{
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: "persona"},
			{Role: chat.RoleAssistant, Content: "earlier answer"},
			{Role: chat.RoleUser, Content: "なぜ火星に行くべきなのか"},
		},
		MaxTokens:        800,
		Temperature:      0.7,
		PresencePenalty:  0.4,
		FrequencyPenalty: 0.2,
	}
}

// =============================================================================
// NON-STREAMING
// =============================================================================

func TestOpenAIProvider_Complete(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"火星は文明の保険だ。"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":120,"completion_tokens":30,"total_tokens":150}
		}`)
	}))
	defer srv.Close()

	got, err := newProvider(t, srv).Complete(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "火星は文明の保険だ。", got.Content)
	assert.Equal(t, chat.Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150}, got.Usage)

	sent := gjson.ParseBytes(<-bodies)
	assert.Equal(t, "gpt-4o-mini", sent.Get("model").String())
	assert.Equal(t, int64(800), sent.Get("max_tokens").Int())
	assert.InDelta(t, 0.7, sent.Get("temperature").Float(), 1e-9)
	assert.InDelta(t, 0.4, sent.Get("presence_penalty").Float(), 1e-9)
	assert.InDelta(t, 0.2, sent.Get("frequency_penalty").Float(), 1e-9)
	assert.False(t, sent.Get("stream").Bool())
	assert.Equal(t, "system", sent.Get("messages.0.role").String())
	assert.Equal(t, "assistant", sent.Get("messages.1.role").String())
	assert.Equal(t, "user", sent.Get("messages.2.role").String())
	assert.Equal(t, "なぜ火星に行くべきなのか", sent.Get("messages.2.content").String())
}

func TestOpenAIProvider_CompleteAPIError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	_, err := newProvider(t, srv).Complete(context.Background(), testRequest())
	require.Error(t, err)

	var pe *completion.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.Equal(t, "Incorrect API key provided", pe.Message)
	assert.Equal(t, int32(1), calls.Load(), "no automatic retries")
}

// =============================================================================
// STREAMING
// =============================================================================

func TestOpenAIProvider_Stream(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		body, _ := io.ReadAll(r.Body)
		assert.True(t, gjson.GetBytes(body, "stream").Bool())

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"火星", "に", "行け"} {
			writeSSE(w, chunkJSON(part))
		}
		writeSSE(w, "[DONE]")
	}))
	defer srv.Close()

	seq := newProvider(t, srv).Stream(context.Background(), testRequest())
	assert.Equal(t, int32(0), requests.Load(), "stream is lazy")

	var parts []string
	for frag, err := range seq {
		require.NoError(t, err)
		parts = append(parts, frag)
	}
	assert.Equal(t, []string{"火星", "に", "行け"}, parts)
	assert.Equal(t, int32(1), requests.Load())
}

func TestOpenAIProvider_StreamMidFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, chunkJSON("途中"))
		writeSSE(w, `{"error":{"message":"upstream overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	var parts []string
	var streamErr error
	for frag, err := range newProvider(t, srv).Stream(context.Background(), testRequest()) {
		if err != nil {
			streamErr = err
			break
		}
		parts = append(parts, frag)
	}

	assert.Equal(t, []string{"途中"}, parts, "fragments before the failure are kept")
	var pe *completion.ProviderError
	require.True(t, errors.As(streamErr, &pe))
	assert.Contains(t, pe.Message, "upstream overloaded")
}

func TestOpenAIProvider_StreamRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"The server had an error"}}`)
	}))
	defer srv.Close()

	var errs []error
	for frag, err := range newProvider(t, srv).Stream(context.Background(), testRequest()) {
		assert.Empty(t, frag)
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	var pe *completion.ProviderError
	require.True(t, errors.As(errs[0], &pe))
	assert.Equal(t, http.StatusInternalServerError, pe.StatusCode)
	assert.Equal(t, "The server had an error", pe.Message)
}

func TestOpenAIProvider_StreamAbandonReleasesConnection(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 500; i++ {
			select {
			case <-r.Context().Done():
				return
			default:
			}
			writeSSE(w, chunkJSON(fmt.Sprintf("part-%d ", i)))
			time.Sleep(5 * time.Millisecond)
		}
		writeSSE(w, "[DONE]")
	}))
	transport := &http.Transport{}
	client := &http.Client{Transport: transport}
	p := completion.NewOpenAIProvider("sk-test", srv.URL, "gpt-4o-mini", option.WithHTTPClient(client))

	received := 0
	for _, err := range p.Stream(context.Background(), testRequest()) {
		require.NoError(t, err)
		received++
		if received == 2 {
			break
		}
	}
	assert.Equal(t, 2, received)

	transport.CloseIdleConnections()
	srv.Close()
}
