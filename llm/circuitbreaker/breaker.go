// Package circuitbreaker 提供按 Provider 绑定的熔断器，连续失败后快速失败，超时后放行试探调用。
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中，调用直接失败）
	StateOpen
	// StateHalfOpen 半开状态（放行少量试探调用）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int

	// ResetTimeout 熔断恢复等待时间（Open -> HalfOpen）
	ResetTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下同时放行的最大试探调用数
	HalfOpenMaxCalls int

	// IsFailure 判定一次调用结果是否计入失败；为空时所有非 nil 错误都计入
	IsFailure func(err error) bool

	// OnStateChange 状态变更回调，在持锁外同步调用
	OnStateChange func(name string, from, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Threshold:        5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breaker 是单个 provider 绑定的熔断器
type Breaker struct {
	name   string
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	halfOpenUsed int
}

// New 创建熔断器，非法配置项回退到默认值
func New(name string, config *Config, logger *zap.Logger) *Breaker {
	cfg := *DefaultConfig()
	if config != nil {
		cfg = *config
	}
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		name:   name,
		config: cfg,
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("provider", name)),
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed. Every nil return must be paired
// with exactly one Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var from, to State
	changed := false
	defer func() {
		b.mu.Unlock()
		if changed {
			b.notify(from, to)
		}
	}()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.ResetTimeout {
			return ErrOpen
		}
		from, to, changed = b.state, StateHalfOpen, true
		b.state = StateHalfOpen
		b.halfOpenUsed = 1
		return nil
	case StateHalfOpen:
		if b.halfOpenUsed >= b.config.HalfOpenMaxCalls {
			return ErrOpen
		}
		b.halfOpenUsed++
		return nil
	default:
		return nil
	}
}

// Record reports the outcome of a call admitted by Allow.
func (b *Breaker) Record(err error) {
	failed := err != nil
	if failed && b.config.IsFailure != nil {
		failed = b.config.IsFailure(err)
	}

	b.mu.Lock()
	from := b.state
	switch {
	case !failed && b.state == StateHalfOpen:
		b.state = StateClosed
		b.failures = 0
		b.halfOpenUsed = 0
	case !failed:
		b.failures = 0
	case b.state == StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
		b.halfOpenUsed = 0
	default:
		b.failures++
		if b.state == StateClosed && b.failures >= b.config.Threshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
	to := b.state
	failures := b.failures
	b.mu.Unlock()

	if from != to {
		if to == StateOpen {
			b.logger.Warn("circuit opened", zap.Int("failures", failures), zap.Error(err))
		} else {
			b.logger.Info("circuit closed")
		}
		b.notify(from, to)
	}
}

// Cancel releases a call admitted by Allow that ended without an outcome,
// such as a cancelled request. The state is left unchanged.
func (b *Breaker) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.halfOpenUsed > 0 {
		b.halfOpenUsed--
	}
}

// State 返回当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 手动恢复到关闭状态
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.halfOpenUsed = 0
	b.mu.Unlock()
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

func (b *Breaker) notify(from, to State) {
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, from, to)
	}
}
