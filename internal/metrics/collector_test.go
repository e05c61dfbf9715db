package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("test", reg, zap.NewNop()), reg
}

func TestNewCollector(t *testing.T) {
	c, _ := newTestCollector(t)
	assert.NotNil(t, c.generationsTotal)
	assert.NotNil(t, c.roundsTotal)
	assert.NotNil(t, c.storeOperations)
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector("dup", reg, nil)
	assert.Panics(t, func() { NewCollector("dup", reg, nil) })
}

func TestCollector_RecordGeneration(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordGeneration("openai", "gpt-4o", "success", 1, 300*time.Millisecond)
	c.RecordGeneration("openai", "gpt-4o", "success", 2, time.Second)
	c.RecordGeneration("openai", "gpt-4o", "TIMEOUT", 3, 5*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.generationsTotal.WithLabelValues("openai", "gpt-4o", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationsTotal.WithLabelValues("openai", "gpt-4o", "TIMEOUT")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.generationDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(c.generationAttempts))
}

func TestCollector_RecordTokens(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordTokens("anthropic", "claude", 120, 40)
	c.RecordTokens("anthropic", "claude", 30, 10)

	assert.Equal(t, 150.0, testutil.ToFloat64(c.tokensUsed.WithLabelValues("anthropic", "claude", "prompt")))
	assert.Equal(t, 50.0, testutil.ToFloat64(c.tokensUsed.WithLabelValues("anthropic", "claude", "completion")))
}

func TestCollector_RecordBreakerState(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordBreakerState("p1", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerState.WithLabelValues("p1")))
	c.RecordBreakerState("p1", 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.breakerState.WithLabelValues("p1")))
}

func TestCollector_RecordRound(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordRound("submit", "completed", 3, 2*time.Second)
	c.RecordRound("continue", "cancelled", 1, time.Second)
	c.RecordStateTransition("active", "dispatching")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.roundsTotal.WithLabelValues("submit", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stateTransitions.WithLabelValues("active", "dispatching")))

	expected := `
# HELP test_rounds_total Total number of conversation rounds by kind and outcome
# TYPE test_rounds_total counter
test_rounds_total{kind="continue",outcome="cancelled"} 1
test_rounds_total{kind="submit",outcome="completed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_rounds_total"))
}

func TestCollector_RecordContext(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordContext(3, 0, 0, 0)
	assert.Equal(t, 0, testutil.CollectAndCount(c.contextEvictions))

	c.RecordContext(1, 4, 2, 0)
	assert.Equal(t, 4.0, testutil.ToFloat64(c.contextEvictions.WithLabelValues("history")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.contextEvictions.WithLabelValues("snippet")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.retrievedSnippets))
}

func TestCollector_RecordStoreOperation(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordStoreOperation("save", nil, 10*time.Millisecond)
	c.RecordStoreOperation("save", errors.New("disk full"), 10*time.Millisecond)
	c.RecordStoreOperation("load", nil, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOperations.WithLabelValues("save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOperations.WithLabelValues("save", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.storeDuration))
}
