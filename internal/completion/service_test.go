package completion_test

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elon-ai/dialogue-gateway/internal/chat"
	"github.com/elon-ai/dialogue-gateway/internal/completion"
	"github.com/elon-ai/dialogue-gateway/internal/config"
)

type fakeProvider struct {
	complete  func(ctx context.Context, req *completion.Request) (*completion.Completion, error)
	fragments []string
	streamErr error
	lastReq   atomic.Pointer[completion.Request]
	streams   atomic.Int32
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) Complete(ctx context.Context, req *completion.Request) (*completion.Completion, error) {
	f.lastReq.Store(req)
	return f.complete(ctx, req)
}

func (f *fakeProvider) Stream(ctx context.Context, req *completion.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.streams.Add(1)
		f.lastReq.Store(req)
		for _, frag := range f.fragments {
			if !yield(frag, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield("", f.streamErr)
		}
	}
}

func messages() []chat.Message {
	return []chat.Message{
		{Role: chat.RoleSystem, Content: "persona"},
		{Role: chat.RoleUser, Content: "hello"},
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := completion.DefaultPolicy()
	assert.Equal(t, 800, p.MaxTokens)
	assert.InDelta(t, 0.7, p.Temperature, 1e-9)
	assert.InDelta(t, 0.4, p.PresencePenalty, 1e-9)
	assert.InDelta(t, 0.2, p.FrequencyPenalty, 1e-9)
}

func TestNewService_DefaultTimeout(t *testing.T) {
	svc := completion.NewService(&fakeProvider{}, 0)
	assert.Equal(t, config.DefaultProviderTimeout, svc.Timeout())
}

func TestGetResponse_Success(t *testing.T) {
	fp := &fakeProvider{complete: func(ctx context.Context, req *completion.Request) (*completion.Completion, error) {
		return &completion.Completion{
			Content: "答え",
			Usage:   chat.Usage{PromptTokens: 100, CompletionTokens: 20},
		}, nil
	}}
	svc := completion.NewService(fp, time.Second)

	resp, err := svc.GetResponse(context.Background(), messages(), chat.ModeFirstPrinciples)
	require.NoError(t, err)

	assert.Equal(t, "答え", resp.Content)
	assert.Equal(t, "第一原理思考で問題を分解・再構築", resp.ModeSummary)
	assert.Equal(t, 120, resp.Usage.TotalTokens, "total derived when provider omits it")

	req := fp.lastReq.Load()
	require.NotNil(t, req)
	assert.Equal(t, 800, req.MaxTokens)
	assert.Len(t, req.Messages, 2)
}

func TestGetResponse_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// Ignores ctx to prove the service stops waiting on its own.
	fp := &fakeProvider{complete: func(ctx context.Context, req *completion.Request) (*completion.Completion, error) {
		<-release
		return &completion.Completion{Content: "late"}, nil
	}}
	svc := completion.NewService(fp, 20*time.Millisecond)

	start := time.Now()
	resp, err := svc.GetResponse(context.Background(), messages(), chat.ModeStandard)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, completion.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGetResponse_ProviderError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "typed error passes through",
			err:        &completion.ProviderError{StatusCode: 401, Message: "Incorrect API key provided"},
			wantStatus: 401,
			wantMsg:    "Incorrect API key provided",
		},
		{
			name:    "plain error is wrapped",
			err:     errors.New("dial tcp: connection refused"),
			wantMsg: "dial tcp: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := &fakeProvider{complete: func(ctx context.Context, req *completion.Request) (*completion.Completion, error) {
				return nil, tt.err
			}}
			_, err := completion.NewService(fp, time.Second).GetResponse(context.Background(), messages(), chat.ModeStandard)

			var pe *completion.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.wantStatus, pe.StatusCode)
			assert.Equal(t, tt.wantMsg, pe.Message)
			assert.NotErrorIs(t, err, completion.ErrTimeout)
		})
	}
}

func TestGetResponse_CallerCancel(t *testing.T) {
	fp := &fakeProvider{complete: func(ctx context.Context, req *completion.Request) (*completion.Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := completion.NewService(fp, time.Second).GetResponse(ctx, messages(), chat.ModeStandard)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetResponseStream(t *testing.T) {
	fp := &fakeProvider{fragments: []string{"第一", "原理", "で"}}
	svc := completion.NewService(fp, time.Second)

	seq := svc.GetResponseStream(context.Background(), messages(), chat.ModeFirstPrinciples)
	assert.Equal(t, int32(0), fp.streams.Load(), "nothing happens until ranged over")

	var out string
	for frag, err := range seq {
		require.NoError(t, err)
		out += frag
	}
	assert.Equal(t, "第一原理で", out)
	assert.Equal(t, int32(1), fp.streams.Load())
}

func TestGetResponseStream_MidStreamFailure(t *testing.T) {
	fp := &fakeProvider{
		fragments: []string{"a", "b"},
		streamErr: errors.New("connection reset by peer"),
	}
	svc := completion.NewService(fp, time.Second)

	var frags []string
	var last error
	for frag, err := range svc.GetResponseStream(context.Background(), messages(), chat.ModeStandard) {
		if err != nil {
			last = err
			continue
		}
		frags = append(frags, frag)
	}

	assert.Equal(t, []string{"a", "b"}, frags)
	var pe *completion.ProviderError
	require.True(t, errors.As(last, &pe))
	assert.Equal(t, "connection reset by peer", pe.Message)
}

func TestGetResponseStream_SingleUse(t *testing.T) {
	fp := &fakeProvider{fragments: []string{"x"}}
	seq := completion.NewService(fp, time.Second).GetResponseStream(context.Background(), messages(), chat.ModeStandard)

	for range seq {
	}

	var errs []error
	for frag, err := range seq {
		assert.Empty(t, frag)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], completion.ErrStreamConsumed)
	assert.Equal(t, int32(1), fp.streams.Load(), "provider not called twice")
}

func TestGetResponseStream_EarlyBreak(t *testing.T) {
	fp := &fakeProvider{fragments: []string{"1", "2", "3", "4"}}
	seq := completion.NewService(fp, time.Second).GetResponseStream(context.Background(), messages(), chat.ModeStandard)

	n := 0
	for _, err := range seq {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestModeSummary(t *testing.T) {
	tests := []struct {
		mode chat.Mode
		want string
	}{
		{chat.ModeStandard, "戦略的分析フレームワークを適用"},
		{chat.ModeFirstPrinciples, "第一原理思考で問題を分解・再構築"},
		{chat.ModeStrategy, "高インパクト戦略シミュレーションを実行"},
		{chat.ModeLife, "人生アドバイス"},
		{chat.Mode("unknown"), "分析完了"},
		{chat.Mode(""), "分析完了"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.want, completion.ModeSummary(tt.mode))
		})
	}
}

func TestProviderError_Error(t *testing.T) {
	assert.Equal(t, "provider error (status 429): slow down",
		(&completion.ProviderError{StatusCode: 429, Message: "slow down"}).Error())
	assert.Equal(t, "provider error: eof", (&completion.ProviderError{Message: "eof"}).Error())

	inner := errors.New("inner")
	assert.ErrorIs(t, &completion.ProviderError{Message: "x", Err: inner}, inner)
}
