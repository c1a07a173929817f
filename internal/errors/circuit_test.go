package errors

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
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

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errors.New("boom") })
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a circuit breaker with max 3 failures
	clock := newFakeClock()
	cb := NewCircuitBreaker("test", WithMaxFailures(3), WithClock(clock.Now))

	// When: recording 3 failures
	failN(cb, 3)

	// Then: circuit is open and rejects calls without running them
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_FullCycle(t *testing.T) {
	// Given: an open breaker with a 10s cool-down
	clock := newFakeClock()
	cb := NewCircuitBreaker("semantic",
		WithMaxFailures(2),
		WithResetTimeout(10*time.Second),
		WithClock(clock.Now),
	)
	failN(cb, 2)
	require.Equal(t, StateOpen, cb.State())

	// When: the cool-down elapses
	clock.Advance(10 * time.Second)

	// Then: the breaker is half-open
	assert.Equal(t, StateHalfOpen, cb.State())

	// When: the trial call succeeds
	require.NoError(t, cb.Execute(func() error { return nil }))

	// Then: it is closed with the failure counter reset
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	// Given: a half-open breaker
	clock := newFakeClock()
	cb := NewCircuitBreaker("test",
		WithMaxFailures(1),
		WithResetTimeout(5*time.Second),
		WithClock(clock.Now),
	)
	failN(cb, 1)
	clock.Advance(5 * time.Second)
	require.Equal(t, StateHalfOpen, cb.State())

	// When: the trial call fails
	failN(cb, 1)

	// Then: the breaker is open again with a fresh cool-down
	assert.Equal(t, StateOpen, cb.State())
	clock.Advance(4 * time.Second)
	assert.Equal(t, StateOpen, cb.State())
	clock.Advance(1 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenGrantsSinglePermit(t *testing.T) {
	// Given: a half-open breaker
	clock := newFakeClock()
	cb := NewCircuitBreaker("test",
		WithMaxFailures(1),
		WithResetTimeout(time.Second),
		WithClock(clock.Now),
	)
	failN(cb, 1)
	clock.Advance(time.Second)

	// When: many goroutines race for a permit
	var granted atomic.Int32
	var wg sync.WaitGroup
	permits := make(chan *Permit, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p, err := cb.Acquire(); err == nil {
				granted.Add(1)
				permits <- p
			}
		}()
	}
	wg.Wait()
	close(permits)

	// Then: exactly one was admitted
	assert.Equal(t, int32(1), granted.Load())

	// And: a second permit is refused until the first resolves
	_, err := cb.Acquire()
	assert.ErrorIs(t, err, ErrCircuitOpen)

	for p := range permits {
		p.Success()
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ReleasedProbeFreesPermit(t *testing.T) {
	// Given: a half-open breaker whose probe was abandoned
	clock := newFakeClock()
	cb := NewCircuitBreaker("test", WithMaxFailures(1), WithResetTimeout(time.Second), WithClock(clock.Now))
	failN(cb, 1)
	clock.Advance(time.Second)

	p, err := cb.Acquire()
	require.NoError(t, err)

	// When: the probe is released without an outcome
	p.Release()

	// Then: another caller may probe and the state did not change
	assert.Equal(t, StateHalfOpen, cb.State())
	_, err = cb.Acquire()
	assert.NoError(t, err)
}

func TestCircuitBreaker_FailuresAgeOutOfWindow(t *testing.T) {
	// Given: a breaker counting failures over a 10s window
	clock := newFakeClock()
	cb := NewCircuitBreaker("test",
		WithMaxFailures(3),
		WithFailureWindow(10*time.Second),
		WithClock(clock.Now),
	)

	// When: failures are spread wider than the window
	failN(cb, 2)
	clock.Advance(11 * time.Second)
	failN(cb, 1)

	// Then: only the recent failure counts and the circuit stays closed
	assert.Equal(t, 1, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsClosedFailures(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("test", WithMaxFailures(3), WithClock(clock.Now))

	failN(cb, 2)
	require.Equal(t, 2, cb.Failures())

	require.NoError(t, cb.Execute(func() error { return nil }))

	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_StaleSuccessDoesNotCloseOpenCircuit(t *testing.T) {
	// Given: a permit taken while closed
	clock := newFakeClock()
	cb := NewCircuitBreaker("test", WithMaxFailures(1), WithClock(clock.Now))
	slow, err := cb.Acquire()
	require.NoError(t, err)

	// When: another call trips the breaker, then the slow call succeeds
	failN(cb, 1)
	slow.Success()

	// Then: the breaker remains open
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_StateChangeHook(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	cb := NewCircuitBreaker("exact",
		WithMaxFailures(1),
		WithResetTimeout(time.Second),
		WithClock(clock.Now),
		WithStateChangeHook(func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		}),
	)

	failN(cb, 1)
	clock.Advance(time.Second)
	require.NoError(t, cb.Execute(func() error { return nil }))

	assert.Equal(t, []string{
		"exact:closed->open",
		"exact:open->half-open",
		"exact:half-open->closed",
	}, transitions)
}

func TestCircuitExecuteWithResult(t *testing.T) {
	cb := NewCircuitBreaker("test", WithMaxFailures(1))

	v, err := CircuitExecuteWithResult(cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = CircuitExecuteWithResult(cb, func() (int, error) { return 0, errors.New("x") })
	require.Error(t, err)

	_, err = CircuitExecuteWithResult(cb, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}
