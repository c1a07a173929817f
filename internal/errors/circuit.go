package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	// StateClosed is the normal state where requests are allowed.
	StateClosed State = iota
	// StateOpen is when the circuit is tripped and requests are blocked.
	StateOpen
	// StateHalfOpen admits a single trial request.
	StateHalfOpen
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern with a rolling
// failure window and a single half-open permit.
//
// Closed: failures within the window are counted; reaching maxFailures opens
// the circuit. Open: every Acquire fails until resetTimeout has elapsed since
// opening. HalfOpen: exactly one permit is granted; its success closes the
// circuit, its failure reopens it with a fresh cool-down.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	window       time.Duration
	resetTimeout time.Duration
	now          func() time.Time
	onChange     func(name string, from, to State)

	mu         sync.Mutex
	state      State
	failures   []time.Time
	openedAt   time.Time
	probing    bool
	generation uint64
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets the number of failures before opening the circuit.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.maxFailures = n
		}
	}
}

// WithResetTimeout sets the cool-down spent in the open state.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.resetTimeout = d
		}
	}
}

// WithFailureWindow sets the rolling window failures are counted in.
// Zero means failures never age out.
func WithFailureWindow(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.window = d
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// WithStateChangeHook registers fn to be called after every transition.
// fn runs outside the breaker's lock.
func WithStateChangeHook(fn func(name string, from, to State)) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.onChange = fn
	}
}

// NewCircuitBreaker creates a new circuit breaker with the given name.
// Default: 5 failures within 60 seconds, 30 second cool-down.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		window:       60 * time.Second,
		resetTimeout: 30 * time.Second,
		now:          time.Now,
		state:        StateClosed,
	}

	for _, opt := range opts {
		opt(cb)
	}

	return cb
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	from, to := cb.advance()
	state := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return state
}

// Failures returns the number of failures counted in the current window.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.prune()
	return len(cb.failures)
}

// Permit is a grant to make one call through the breaker.
// Exactly one of Success, Failure or Release should be called.
type Permit struct {
	cb         *CircuitBreaker
	generation uint64
	probe      bool
	once       sync.Once
}

// Acquire asks for a permit. It returns ErrCircuitOpen when the circuit is
// open or when the half-open trial permit is already taken.
func (cb *CircuitBreaker) Acquire() (*Permit, error) {
	cb.mu.Lock()
	from, to := cb.advance()

	var (
		permit *Permit
		err    error
	)
	switch cb.state {
	case StateClosed:
		permit = &Permit{cb: cb, generation: cb.generation}
	case StateHalfOpen:
		if cb.probing {
			err = ErrCircuitOpen
		} else {
			cb.probing = true
			permit = &Permit{cb: cb, generation: cb.generation, probe: true}
		}
	default:
		err = ErrCircuitOpen
	}
	cb.mu.Unlock()

	cb.notify(from, to)
	return permit, err
}

// Success records a successful call.
func (p *Permit) Success() {
	p.once.Do(func() { p.cb.record(p, true) })
}

// Failure records a failed call.
func (p *Permit) Failure() {
	p.once.Do(func() { p.cb.record(p, false) })
}

// Release gives the permit back without recording an outcome, e.g. when the
// caller itself was cancelled.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.cb.mu.Lock()
		if p.probe && p.generation == p.cb.generation {
			p.cb.probing = false
		}
		p.cb.mu.Unlock()
	})
}

// Done records err == nil as success and anything else as failure.
func (p *Permit) Done(err error) {
	if err != nil {
		p.Failure()
		return
	}
	p.Success()
}

// Execute runs fn through the circuit breaker.
// Returns ErrCircuitOpen without calling fn if no permit is available.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	permit, err := cb.Acquire()
	if err != nil {
		return err
	}
	err = fn()
	permit.Done(err)
	return err
}

// CircuitExecuteWithResult runs a value-returning fn through the breaker.
func CircuitExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	permit, err := cb.Acquire()
	if err != nil {
		return zero, err
	}
	v, err := fn()
	permit.Done(err)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// Reset forces the breaker back to closed with no recorded failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.toClosed()
	cb.mu.Unlock()

	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) record(p *Permit, success bool) {
	cb.mu.Lock()
	from, to := cb.advance()

	// Outcomes from permits granted before the last transition carry no
	// information about the current state; only closed-state failures still
	// count toward the window.
	stale := p.generation != cb.generation

	switch {
	case p.probe && !stale:
		cb.probing = false
		prev := cb.state
		if success {
			cb.toClosed()
		} else {
			cb.toOpen()
		}
		from, to = prev, cb.state
	case success:
		if !stale && cb.state == StateClosed {
			cb.failures = cb.failures[:0]
		}
	case cb.state == StateClosed:
		cb.failures = append(cb.failures, cb.now())
		cb.prune()
		if len(cb.failures) >= cb.maxFailures {
			cb.toOpen()
			from, to = StateClosed, StateOpen
		}
	}
	cb.mu.Unlock()

	cb.notify(from, to)
}

// advance applies the time-driven Open to HalfOpen transition.
// Must be called with mu held. Returns the transition made, if any.
func (cb *CircuitBreaker) advance() (State, State) {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		cb.state = StateHalfOpen
		cb.probing = false
		cb.generation++
		return StateOpen, StateHalfOpen
	}
	return cb.state, cb.state
}

// prune drops failures older than the rolling window. Must be called with mu held.
func (cb *CircuitBreaker) prune() {
	if cb.window <= 0 || len(cb.failures) == 0 {
		return
	}
	cutoff := cb.now().Add(-cb.window)
	i := 0
	for i < len(cb.failures) && !cb.failures[i].After(cutoff) {
		i++
	}
	cb.failures = cb.failures[i:]
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.probing = false
	cb.generation++
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.failures = nil
	cb.probing = false
	cb.generation++
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}
