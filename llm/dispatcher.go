package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/llm/circuitbreaker"
	"github.com/BaSui01/roundtable/llm/retry"
	"github.com/BaSui01/roundtable/types"
)

const instrumentationName = "github.com/BaSui01/roundtable/llm"

// Recorder receives one observation per dispatched turn.
type Recorder interface {
	RecordGeneration(provider, model, outcome string, attempts int, duration time.Duration)
}

// DispatcherConfig configures retries and timeouts of generation calls.
type DispatcherConfig struct {
	// Retry is the backoff policy. Its retry predicate is always replaced so
	// that only Timeout and RateLimited failures are retried.
	Retry *retry.RetryPolicy

	// CallTimeout bounds every single generation call. Zero disables it.
	CallTimeout time.Duration

	// Stream enables incremental output for generators that support it.
	Stream bool

	// Breaker enables a circuit breaker per provider binding. Nil disables
	// it. When IsFailure is unset only provider, timeout and rate-limit
	// failures count.
	Breaker *circuitbreaker.Config
}

// DispatchRequest asks for one participant's turn.
type DispatchRequest struct {
	Participant string
	ProviderID  string
	Model       string
	System      string
	Prompt      string
	MaxTokens   int

	// OnPartial receives the accumulated text of a streamed turn.
	OnPartial func(text string)
}

// DispatchResult is a successful turn.
type DispatchResult struct {
	Provider string
	Model    string
	Text     string
	Attempts int
	Usage    types.TokenUsage
	Latency  time.Duration
}

// Dispatcher invokes the provider binding of a participant with retry,
// backoff, per-call timeouts, rate limiting and failure classification.
type Dispatcher struct {
	bindings *BindingSet
	cfg      DispatcherConfig
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.Breaker
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher creates a dispatcher over bindings.
func NewDispatcher(bindings *BindingSet, cfg DispatcherConfig, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultRetryPolicy()
	}
	d := &Dispatcher{
		bindings: bindings,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "dispatcher")),
		tracer:   otel.Tracer(instrumentationName),
		breakers: make(map[string]*circuitbreaker.Breaker),
	}
	if cfg.Breaker != nil && cfg.Breaker.IsFailure == nil {
		bc := *cfg.Breaker
		bc.IsFailure = isBreakerFailure
		d.cfg.Breaker = &bc
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one participant's turn and returns the generated text or a
// classified *types.Error. A cancelled ctx yields the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResult, error) {
	start := time.Now()

	binding, err := d.bindings.Get(req.ProviderID)
	if err != nil {
		d.observe(req.ProviderID, req.Model, err, 0, start)
		d.logFailure(req, req.Model, 0, err)
		return nil, err
	}
	model := binding.Model(req.Model)

	ctx, span := d.tracer.Start(ctx, "llm.dispatch",
		trace.WithAttributes(
			attribute.String("llm.provider", binding.ID),
			attribute.String("llm.model", model),
			attribute.String("participant", req.Participant),
		))
	defer span.End()

	br := d.breaker(binding.ID)
	if br != nil {
		if err := br.Allow(); err != nil {
			err = types.NewError(types.ErrProvider, "provider circuit is open").
				WithCause(err).WithProvider(binding.ID)
			span.SetStatus(codes.Error, string(types.ErrProvider))
			d.observe(binding.ID, model, err, 0, start)
			d.logFailure(req, model, 0, err)
			return nil, err
		}
	}

	policy := *d.cfg.Retry
	policy.RetryableErrors = nil
	policy.ShouldRetry = isRetryableCode
	userOnRetry := d.cfg.Retry.OnRetry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		d.logFailure(req, model, attempt, err)
		if userOnRetry != nil {
			userOnRetry(attempt, err, delay)
		}
	}
	retryer := retry.NewBackoffRetryer(&policy, d.logger)

	attempts := 0
	resp, err := retry.Run(ctx, retryer, func() (*GenerateResponse, error) {
		attempts++
		return d.attempt(ctx, binding, model, req)
	})

	span.SetAttributes(attribute.Int("llm.attempts", attempts))
	if err != nil && ctx.Err() == nil {
		err = finalError(err, attempts)
	}
	if br != nil {
		if ctx.Err() != nil {
			br.Cancel()
		} else {
			br.Record(err)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			d.observe(binding.ID, model, ctx.Err(), attempts, start)
			return nil, ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(types.GetErrorCode(err)))
		d.observe(binding.ID, model, err, attempts, start)
		d.logFailure(req, model, attempts, err)
		return nil, err
	}

	d.observe(binding.ID, model, nil, attempts, start)
	return &DispatchResult{
		Provider: binding.ID,
		Model:    model,
		Text:     resp.Text,
		Attempts: attempts,
		Usage:    resp.Usage,
		Latency:  time.Since(start),
	}, nil
}

// breaker returns the circuit breaker of a binding, or nil when disabled.
func (d *Dispatcher) breaker(id string) *circuitbreaker.Breaker {
	if d.cfg.Breaker == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.breakers[id]
	if !ok {
		b = circuitbreaker.New(id, d.cfg.Breaker, d.logger)
		d.breakers[id] = b
	}
	return b
}

// BreakerState reports the circuit state of a binding. Bindings without a
// breaker report closed.
func (d *Dispatcher) BreakerState(id string) circuitbreaker.State {
	d.mu.Lock()
	b, ok := d.breakers[id]
	d.mu.Unlock()
	if !ok {
		return circuitbreaker.StateClosed
	}
	return b.State()
}

func isBreakerFailure(err error) bool {
	switch types.GetErrorCode(err) {
	case types.ErrProvider, types.ErrTimeout, types.ErrRateLimited:
		return true
	}
	return false
}

// attempt performs a single generation call under the per-call timeout.
func (d *Dispatcher) attempt(ctx context.Context, b *Binding, model string, req *DispatchRequest) (*GenerateResponse, error) {
	if b.Limiter != nil {
		if err := b.Limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, types.NewError(types.ErrRateLimited, "local rate limit exceeded").
				WithCause(err).WithRetryable(true).WithProvider(b.ID)
		}
	}

	timeout := d.cfg.CallTimeout
	if b.Timeout > 0 {
		timeout = b.Timeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	genReq := &GenerateRequest{
		Model:     model,
		System:    req.System,
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
	}

	var (
		resp *GenerateResponse
		err  error
	)
	if sg, ok := b.Generator.(StreamGenerator); ok && d.cfg.Stream && req.OnPartial != nil {
		resp, err = d.stream(callCtx, sg, genReq, req.OnPartial)
	} else {
		resp, err = b.Generator.Generate(callCtx, genReq)
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if callCtx.Err() != nil {
			return nil, types.NewError(types.ErrTimeout, fmt.Sprintf("generation exceeded %s", timeout)).
				WithCause(err).WithRetryable(true).WithProvider(b.ID)
		}
		return nil, ClassifyError(err, b.ID)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return nil, types.NewError(types.ErrEmptyResponse, "provider returned no text").WithProvider(b.ID)
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return resp, nil
}

// stream consumes a streamed generation, reporting the accumulated text.
func (d *Dispatcher) stream(ctx context.Context, sg StreamGenerator, req *GenerateRequest, onPartial func(string)) (*GenerateResponse, error) {
	ch, err := sg.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	finish := ""
	for chunk := range ch {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		if chunk.Delta != "" {
			sb.WriteString(chunk.Delta)
			onPartial(sb.String())
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &GenerateResponse{
		Provider:     sg.Name(),
		Model:        req.Model,
		Text:         sb.String(),
		FinishReason: finish,
	}, nil
}

// finalError flattens a retry exhaustion into the classified failure so
// callers only ever see *types.Error codes.
func finalError(err error, attempts int) error {
	var te *types.Error
	if !errors.As(err, &te) {
		return types.NewError(types.ErrProvider, "provider call failed").WithCause(err)
	}
	if retry.IsExhausted(err) {
		return types.Errorf(te.Code, "%s (after %d attempts)", te.Message, attempts).
			WithCause(te.Cause).
			WithProvider(te.Provider).
			WithHTTPStatus(te.HTTPStatus)
	}
	return te
}

func (d *Dispatcher) observe(provider, model string, err error, attempts int, start time.Time) {
	if d.recorder == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && types.GetErrorCode(err) == "":
		outcome = "cancelled"
	default:
		outcome = strings.ToLower(string(types.GetErrorCode(err)))
	}
	d.recorder.RecordGeneration(provider, model, outcome, attempts, time.Since(start))
}

func (d *Dispatcher) logFailure(req *DispatchRequest, model string, attempt int, err error) {
	d.logger.Warn("generation failed",
		zap.String("provider", req.ProviderID),
		zap.String("model", model),
		zap.String("participant", req.Participant),
		zap.Int("attempt", attempt),
		zap.String("code", string(types.GetErrorCode(err))),
		zap.Error(err),
	)
}
