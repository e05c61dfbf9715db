// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 生成调用指标
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	generationAttempts *prometheus.HistogramVec
	tokensUsed         *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec

	// 轮次指标
	roundsTotal       *prometheus.CounterVec
	roundDuration     *prometheus.HistogramVec
	roundParticipants prometheus.Histogram
	stateTransitions  *prometheus.CounterVec

	// 上下文构建指标
	contextEvictions  *prometheus.CounterVec
	retrievedSnippets prometheus.Histogram

	// 存储指标
	storeOperations *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the roundtable metrics on reg. A nil reg falls
// back to prometheus.DefaultRegisterer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.generationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of participant generation calls by outcome",
		},
		[]string{"provider", "model", "outcome"},
	)

	c.generationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Generation call duration in seconds, retries included",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.generationAttempts = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_attempts",
			Help:      "Provider attempts per generation call",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"provider"},
	)

	c.tokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of tokens reported by providers",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.breakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_circuit_state",
			Help:      "Provider circuit breaker state (0 closed, 1 open, 2 half open)",
		},
		[]string{"provider"},
	)

	c.roundsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Total number of conversation rounds by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	c.roundDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Conversation round duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	c.roundParticipants = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_participants",
			Help:      "Participants scheduled per round",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12},
		},
	)

	c.stateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_state_transitions_total",
			Help:      "Total number of session state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	c.contextEvictions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_evictions_total",
			Help:      "Prompt items dropped to fit the token budget",
		},
		[]string{"kind"}, // kind: history, snippet, stimulus
	)

	c.retrievedSnippets = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_snippets",
			Help:      "Retrieval snippets included per prompt",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	c.storeOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thread_store_operations_total",
			Help:      "Total number of thread store operations",
		},
		[]string{"operation", "status"},
	)

	c.storeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "thread_store_duration_seconds",
			Help:      "Thread store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🤖 生成调用指标记录
// =============================================================================

// RecordGeneration 记录一次参与者生成调用
func (c *Collector) RecordGeneration(provider, model, outcome string, attempts int, duration time.Duration) {
	c.generationsTotal.WithLabelValues(provider, model, outcome).Inc()
	c.generationDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.generationAttempts.WithLabelValues(provider).Observe(float64(attempts))
}

// RecordTokens 记录 Token 用量
func (c *Collector) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	c.tokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.tokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🎭 轮次指标记录
// =============================================================================

// RecordRound 记录一轮对话
func (c *Collector) RecordRound(kind, outcome string, participants int, duration time.Duration) {
	c.roundsTotal.WithLabelValues(kind, outcome).Inc()
	c.roundDuration.WithLabelValues(kind).Observe(duration.Seconds())
	c.roundParticipants.Observe(float64(participants))
}

// RecordBreakerState 记录 provider 熔断器状态
func (c *Collector) RecordBreakerState(provider string, state int) {
	c.breakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordStateTransition 记录会话状态转换
func (c *Collector) RecordStateTransition(from, to string) {
	c.stateTransitions.WithLabelValues(from, to).Inc()
}

// RecordContext 记录一次上下文构建
func (c *Collector) RecordContext(snippets, evictedHistory, evictedSnippets, evictedStimulus int) {
	c.retrievedSnippets.Observe(float64(snippets))
	if evictedHistory > 0 {
		c.contextEvictions.WithLabelValues("history").Add(float64(evictedHistory))
	}
	if evictedSnippets > 0 {
		c.contextEvictions.WithLabelValues("snippet").Add(float64(evictedSnippets))
	}
	if evictedStimulus > 0 {
		c.contextEvictions.WithLabelValues("stimulus").Add(float64(evictedStimulus))
	}
}

// =============================================================================
// 🗄️ 存储指标记录
// =============================================================================

// RecordStoreOperation 记录线程存储操作
func (c *Collector) RecordStoreOperation(operation string, err error, duration time.Duration) {
	c.storeOperations.WithLabelValues(operation, status(err)).Inc()
	c.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
