package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/llm/circuitbreaker"
	"github.com/BaSui01/roundtable/llm/retry"
	"github.com/BaSui01/roundtable/types"
)

// scriptedGenerator returns the scripted errors in order, then text.
type scriptedGenerator struct {
	mu     sync.Mutex
	errs   []error
	text   string
	delay  time.Duration
	calls  int32
	models []string
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	atomic.AddInt32(&g.calls, 1)
	g.mu.Lock()
	g.models = append(g.models, req.Model)
	var err error
	if len(g.errs) > 0 {
		err, g.errs = g.errs[0], g.errs[1:]
	}
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &GenerateResponse{Text: g.text}, nil
}

type streamingGenerator struct {
	scriptedGenerator
	chunks []string
}

func (g *streamingGenerator) Stream(ctx context.Context, req *GenerateRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		for _, c := range g.chunks {
			select {
			case ch <- StreamChunk{Delta: c}:
			case <-ctx.Done():
				return
			}
		}
		ch <- StreamChunk{FinishReason: "stop"}
	}()
	return ch, nil
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []string
	attempts []int
}

func (r *recordingRecorder) RecordGeneration(provider, model, outcome string, attempts int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	r.attempts = append(r.attempts, attempts)
}

func testDispatcher(t *testing.T, gen Generator, cfg DispatcherConfig, opts ...DispatcherOption) *Dispatcher {
	t.Helper()
	set, err := NewBindingSet(&Binding{ID: "p1", Kind: KindEcho, DefaultModel: "m-default", Generator: gen})
	require.NoError(t, err)
	if cfg.Retry == nil {
		cfg.Retry = &retry.RetryPolicy{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		}
	}
	return NewDispatcher(set, cfg, zap.NewNop(), opts...)
}

func TestDispatcher_Success(t *testing.T) {
	gen := &scriptedGenerator{text: "hello"}
	rec := &recordingRecorder{}
	d := testDispatcher(t, gen, DispatcherConfig{}, WithRecorder(rec))

	res, err := d.Dispatch(context.Background(), &DispatchRequest{Participant: "Vanessa", ProviderID: "p1", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, "m-default", res.Model)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{"m-default"}, gen.models)
	assert.Equal(t, []string{"ok"}, rec.outcomes)
}

func TestDispatcher_ModelOverride(t *testing.T) {
	gen := &scriptedGenerator{text: "hello"}
	d := testDispatcher(t, gen, DispatcherConfig{})

	res, err := d.Dispatch(context.Background(), &DispatchRequest{ProviderID: "p1", Model: "m-custom"})
	require.NoError(t, err)
	assert.Equal(t, "m-custom", res.Model)
}

func TestDispatcher_UnknownBindingIsConfigurationError(t *testing.T) {
	gen := &scriptedGenerator{text: "hello"}
	d := testDispatcher(t, gen, DispatcherConfig{})

	_, err := d.Dispatch(context.Background(), &DispatchRequest{ProviderID: "missing"})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
	assert.Zero(t, atomic.LoadInt32(&gen.calls))
}

func TestDispatcher_RetryPolicyByClass(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCode  types.ErrorCode
		wantCalls int32
	}{
		{
			name:      "timeout retried until exhausted",
			errs:      []error{types.NewError(types.ErrTimeout, "t"), types.NewError(types.ErrTimeout, "t"), types.NewError(types.ErrTimeout, "t")},
			wantCode:  types.ErrTimeout,
			wantCalls: 3,
		},
		{
			name:      "rate limited retried then succeeds",
			errs:      []error{errors.New("HTTP 429 Too Many Requests")},
			wantCode:  "",
			wantCalls: 2,
		},
		{
			name:      "provider error not retried",
			errs:      []error{errors.New("400 bad request")},
			wantCode:  types.ErrProvider,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{text: "ok", errs: tt.errs}
			d := testDispatcher(t, gen, DispatcherConfig{})

			res, err := d.Dispatch(context.Background(), &DispatchRequest{ProviderID: "p1"})
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, "ok", res.Text)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&gen.calls))
		})
	}
}

func TestDispatcher_EmptyResponseNotRetried(t *testing.T) {
	gen := &scriptedGenerator{text: "   \n"}
	d := testDispatcher(t, gen, DispatcherConfig{})

	_, err := d.Dispatch(context.Background(), &DispatchRequest{ProviderID: "p1"})
	require.Error(t, err)
	assert.Equal(t, types.ErrEmptyResponse, types.GetErrorCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&gen.calls))
}

func TestDispatcher_PerCallTimeout(t *testing.T) {
	gen := &scriptedGenerator{text: "late", delay: 200 * time.Millisecond}
	rec := &recordingRecorder{}
	d := testDispatcher(t, gen, DispatcherConfig{CallTimeout: 10 * time.Millisecond}, WithRecorder(rec))

	_, err := d.Dispatch(context.Background(), &DispatchRequest{ProviderID: "p1"})
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&gen.calls))
	assert.Equal(t, []string{"timeout"}, rec.outcomes)
	assert.Equal(t, []int{3}, rec.attempts)
}

func TestDispatcher_CancelledContext(t *testing.T) {
	gen := &scriptedGenerator{text: "late", delay: time.Second}
	d := testDispatcher(t, gen, DispatcherConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := d.Dispatch(ctx, &DispatchRequest{ProviderID: "p1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.ErrorCode(""), types.GetErrorCode(err))
}

func TestDispatcher_BreakerFailsFast(t *testing.T) {
	gen := &scriptedGenerator{text: "ok", errs: []error{errors.New("400 bad request"), errors.New("400 bad request")}}
	rec := &recordingRecorder{}
	d := testDispatcher(t, gen, DispatcherConfig{
		Breaker: &circuitbreaker.Config{Threshold: 2, ResetTimeout: time.Hour},
	}, WithRecorder(rec))

	for i := 0; i < 2; i++ {
		_, err := d.Dispatch(context.Background(), &DispatchRequest{ProviderID: "p1"})
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, d.BreakerState("p1"))

	_, err := d.Dispatch(context.Background(), &DispatchRequest{ProviderID: "p1"})
	require.Error(t, err)
	assert.Equal(t, types.ErrProvider, types.GetErrorCode(err))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gen.calls))
	assert.Len(t, rec.outcomes, 3)
}

func TestDispatcher_BreakerIgnoresEmptyResponses(t *testing.T) {
	gen := &scriptedGenerator{text: " "}
	d := testDispatcher(t, gen, DispatcherConfig{
		Breaker: &circuitbreaker.Config{Threshold: 1, ResetTimeout: time.Hour},
	})

	for i := 0; i < 3; i++ {
		_, err := d.Dispatch(context.Background(), &DispatchRequest{ProviderID: "p1"})
		assert.Equal(t, types.ErrEmptyResponse, types.GetErrorCode(err))
	}
	assert.Equal(t, circuitbreaker.StateClosed, d.BreakerState("p1"))
	assert.Equal(t, circuitbreaker.StateClosed, d.BreakerState("unknown"))
}

func TestDispatcher_StreamingPartials(t *testing.T) {
	gen := &streamingGenerator{chunks: []string{"Hel", "lo"}}
	d := testDispatcher(t, gen, DispatcherConfig{Stream: true})

	var partials []string
	res, err := d.Dispatch(context.Background(), &DispatchRequest{
		ProviderID: "p1",
		OnPartial:  func(text string) { partials = append(partials, text) },
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)
	assert.Equal(t, []string{"Hel", "Hello"}, partials)
}

func TestDispatcher_StreamDisabledUsesGenerate(t *testing.T) {
	gen := &streamingGenerator{scriptedGenerator: scriptedGenerator{text: "whole"}, chunks: []string{"x"}}
	d := testDispatcher(t, gen, DispatcherConfig{Stream: false})

	res, err := d.Dispatch(context.Background(), &DispatchRequest{
		ProviderID: "p1",
		OnPartial:  func(string) { t.Fatal("no partials expected") },
	})
	require.NoError(t, err)
	assert.Equal(t, "whole", res.Text)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want types.ErrorCode
	}{
		{context.DeadlineExceeded, types.ErrTimeout},
		{errors.New("request timed out"), types.ErrTimeout},
		{errors.New("status 429: rate limit reached"), types.ErrRateLimited},
		{errors.New("RESOURCE_EXHAUSTED"), types.ErrRateLimited},
		{errors.New("500 internal"), types.ErrProvider},
		{types.NewError(types.ErrEmptyResponse, "x"), types.ErrEmptyResponse},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, types.GetErrorCode(ClassifyError(tt.err, "p")), tt.err.Error())
	}
	assert.ErrorIs(t, ClassifyError(context.Canceled, "p"), context.Canceled)
	assert.Nil(t, ClassifyError(nil, "p"))
}

func TestClassifyError_DoesNotMutateSharedError(t *testing.T) {
	shared := types.NewError(types.ErrEmptyResponse, "no text")

	got := ClassifyError(shared, "p1")
	var te *types.Error
	require.True(t, errors.As(got, &te))
	assert.Equal(t, "p1", te.Provider)
	assert.Empty(t, shared.Provider)

	got = ClassifyError(shared, "p2")
	require.True(t, errors.As(got, &te))
	assert.Equal(t, "p2", te.Provider)

	tagged := types.NewError(types.ErrTimeout, "slow").WithProvider("origin")
	require.True(t, errors.As(ClassifyError(tagged, "p1"), &te))
	assert.Equal(t, "origin", te.Provider)
}

func TestBindingSet(t *testing.T) {
	set, err := NewBindingSet()
	require.NoError(t, err)

	assert.Error(t, set.Register(&Binding{ID: ""}))
	assert.Error(t, set.Register(&Binding{ID: "x"}))
	require.NoError(t, set.Register(&Binding{ID: "b", Generator: &scriptedGenerator{}}))
	require.NoError(t, set.Register(&Binding{ID: "a", Generator: &scriptedGenerator{}}))

	assert.Equal(t, []string{"a", "b"}, set.IDs())
	assert.True(t, set.Has("a"))
	_, err = set.Get("zzz")
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))

	assert.Nil(t, NewLimiter(0, 1))
	assert.NotNil(t, NewLimiter(5, 0))
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind(" OpenAI_Compat ")
	assert.True(t, ok)
	assert.Equal(t, KindOpenAICompat, k)

	_, ok = ParseKind("bedrock")
	assert.False(t, ok)
}
