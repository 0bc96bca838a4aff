package resilience

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, timeout time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("alpha_vantage", BreakerConfig{FailureThreshold: threshold, RecoveryTimeout: timeout})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, Closed, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, Open, cb.State())
	assert.False(t, cb.Allow())
	assert.Equal(t, 3, cb.Snapshot().FailureCount)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, Closed, cb.State(), "failures are consecutive; a success resets the count")
}

func TestCircuitBreaker_SingleProbeThenClose(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, Open, cb.State())

	clock.Advance(59 * time.Second)
	assert.False(t, cb.Allow(), "still inside the recovery timeout")

	clock.Advance(time.Second)
	assert.True(t, cb.Allow(), "probe granted once the timeout elapsed")
	assert.Equal(t, HalfOpen, cb.State())
	assert.False(t, cb.Allow(), "only one probe in HALF_OPEN")
	assert.False(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, Closed, cb.State())
	assert.True(t, cb.Allow())
	assert.Equal(t, 0, cb.Snapshot().FailureCount)
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second)

	cb.RecordFailure()
	clock.Advance(30 * time.Second)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, Open, cb.State())
	assert.False(t, cb.Allow(), "a failed probe restarts the recovery timeout")

	clock.Advance(30 * time.Second)
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_StaleProbeRegranted(t *testing.T) {
	cb, clock := newTestBreaker(1, 10*time.Second)

	cb.RecordFailure()
	clock.Advance(10 * time.Second)
	require.True(t, cb.Allow())

	// probe never reports back
	clock.Advance(5 * time.Second)
	assert.False(t, cb.Allow())
	clock.Advance(5 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, HalfOpen, cb.State())
}

func TestCircuitBreaker_ConcurrentProbe(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second)
	cb.RecordFailure()
	clock.Advance(time.Second)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cb.Allow() {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
}

func TestCircuitBreaker_StateChangeHook(t *testing.T) {
	var transitions []string
	clock := newFakeClock()
	cb := NewCircuitBreaker("scraper", BreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})
	cb.now = clock.Now

	cb.RecordFailure()
	clock.Advance(time.Second)
	cb.Allow()
	cb.RecordSuccess()

	assert.Equal(t, []string{
		"scraper:CLOSED->OPEN",
		"scraper:OPEN->HALF_OPEN",
		"scraper:HALF_OPEN->CLOSED",
	}, transitions)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)
	cb.RecordFailure()
	require.Equal(t, Open, cb.State())

	cb.Reset()
	assert.Equal(t, Closed, cb.State())
	assert.True(t, cb.Allow())
}

func TestBreakers_PolicyAndSnapshots(t *testing.T) {
	policies := map[string]BreakerConfig{
		"alpha_vantage": {FailureThreshold: 3, RecoveryTimeout: 300 * time.Second},
		"scraper":       {FailureThreshold: 5, RecoveryTimeout: 600 * time.Second},
	}
	reg := NewBreakers(func(name string) BreakerConfig { return policies[name] })

	av := reg.Get("alpha_vantage")
	assert.Same(t, av, reg.Get("alpha_vantage"), "one breaker per source")

	sc := reg.Get("scraper")
	sc.RecordFailure()

	snaps := reg.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "alpha_vantage", snaps[0].Name)
	assert.Equal(t, 3, snaps[0].Threshold)
	assert.Equal(t, "scraper", snaps[1].Name)
	assert.Equal(t, 5, snaps[1].Threshold)
	assert.Equal(t, 600*time.Second, snaps[1].RecoveryTimeout)
	assert.Equal(t, 1, snaps[1].FailureCount)
}

func TestBreakers_HookApplied(t *testing.T) {
	var opened atomic.Int32
	reg := NewBreakers(nil).OnStateChange(func(name string, from, to State) {
		if to == Open {
			opened.Add(1)
		}
	})

	cb := reg.Get("finnhub")
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, int32(1), opened.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "CLOSED", Closed.String())
	assert.Equal(t, "OPEN", Open.String())
	assert.Equal(t, "HALF_OPEN", HalfOpen.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
}
