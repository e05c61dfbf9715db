package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

var errBoom = errors.New("boom")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(cfg *Config) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New("p1", cfg, zap.NewNop())
	b.now = clock.Now
	return b, clock
}

func fail(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, b.Allow())
		b.Record(errBoom)
	}
}

func TestNew_Defaults(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil config", cfg: nil},
		{name: "zero values", cfg: &Config{HalfOpenMaxCalls: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("p1", tt.cfg, nil)
			assert.Equal(t, 5, b.config.Threshold)
			assert.Equal(t, 30*time.Second, b.config.ResetTimeout)
			assert.Equal(t, 1, b.config.HalfOpenMaxCalls)
			assert.Equal(t, StateClosed, b.State())
		})
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(&Config{Threshold: 3, ResetTimeout: time.Minute})

	fail(t, b, 2)
	assert.Equal(t, StateClosed, b.State())
	fail(t, b, 1)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(&Config{Threshold: 2, ResetTimeout: time.Minute})

	fail(t, b, 1)
	require.NoError(t, b.Allow())
	b.Record(nil)
	fail(t, b, 1)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	tests := []struct {
		name  string
		probe error
		want  State
	}{
		{name: "probe succeeds", probe: nil, want: StateClosed},
		{name: "probe fails", probe: errBoom, want: StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, clock := newTestBreaker(&Config{Threshold: 1, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1})
			fail(t, b, 1)

			clock.Advance(59 * time.Second)
			assert.ErrorIs(t, b.Allow(), ErrOpen)

			clock.Advance(time.Second)
			require.NoError(t, b.Allow())
			assert.Equal(t, StateHalfOpen, b.State())
			assert.ErrorIs(t, b.Allow(), ErrOpen, "only one probe in flight")

			b.Record(tt.probe)
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreaker_CancelReleasesProbe(t *testing.T) {
	b, clock := newTestBreaker(&Config{Threshold: 1, ResetTimeout: time.Minute})
	fail(t, b, 1)
	clock.Advance(time.Minute)

	require.NoError(t, b.Allow())
	b.Cancel()
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Allow(), "probe slot is free again")
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	ignored := errors.New("bad request")
	b, _ := newTestBreaker(&Config{
		Threshold:    1,
		ResetTimeout: time.Minute,
		IsFailure:    func(err error) bool { return !errors.Is(err, ignored) },
	})

	require.NoError(t, b.Allow())
	b.Record(ignored)
	assert.Equal(t, StateClosed, b.State())

	require.NoError(t, b.Allow())
	b.Record(errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)
	b, clock := newTestBreaker(&Config{
		Threshold:    1,
		ResetTimeout: time.Second,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	fail(t, b, 1)
	clock.Advance(time.Second)
	require.NoError(t, b.Allow())
	b.Record(nil)
	fail(t, b, 1)
	b.Reset()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"p1:closed->open",
		"p1:open->half_open",
		"p1:half_open->closed",
		"p1:closed->open",
		"p1:open->closed",
	}, transitions)
}

func TestDo(t *testing.T) {
	b, _ := newTestBreaker(&Config{Threshold: 1, ResetTimeout: time.Minute})

	v, err := Do(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = Do(b, func() (int, error) { return 0, errBoom })
	assert.ErrorIs(t, err, errBoom)

	calls := 0
	_, err = Do(b, func() (int, error) { calls++; return 1, nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)
}

func TestBreaker_ClosedUntilThresholdConsecutiveFailures(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		threshold := rapid.IntRange(1, 6).Draw(rt, "threshold")
		outcomes := rapid.SliceOfN(rapid.Bool(), 0, 30).Draw(rt, "outcomes")
		b, _ := newTestBreaker(&Config{Threshold: threshold, ResetTimeout: time.Hour})

		run := 0
		for _, failed := range outcomes {
			if b.Allow() != nil {
				if run < threshold {
					rt.Fatalf("rejected after %d consecutive failures, threshold %d", run, threshold)
				}
				return
			}
			if failed {
				b.Record(errBoom)
				run++
			} else {
				b.Record(nil)
				run = 0
			}
		}
		if (run >= threshold) != (b.State() == StateOpen) {
			rt.Fatalf("state %s after run %d, threshold %d", b.State(), run, threshold)
		}
	})
}
