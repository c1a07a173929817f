package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	ferrors "github.com/Aman-CERP/fusesearch/internal/errors"
)

// PartialResults holds the matches of every backend that succeeded for one
// query. Backends that failed, timed out or were skipped are absent from
// ByBackend; Reports covers all of them in priority order.
type PartialResults struct {
	ByBackend map[MatchType][]RawMatch
	Reports   []BackendReport
}

// Total returns the number of matches across all backends.
func (p *PartialResults) Total() int {
	n := 0
	for _, m := range p.ByBackend {
		n += len(m)
	}
	return n
}

// Complete reports whether every dispatched backend succeeded.
func (p *PartialResults) Complete() bool {
	for _, r := range p.Reports {
		if r.Outcome != OutcomeSuccess {
			return false
		}
	}
	return true
}

// BreakerStatus is a point-in-time view of one backend's circuit breaker.
type BreakerStatus struct {
	Backend  MatchType `json:"backend"`
	State    string    `json:"state"`
	Failures int       `json:"failures"`
}

// registered is a backend with its table row and resilience state.
type registered struct {
	backend Backend
	spec    BackendSpec
	breaker *ferrors.CircuitBreaker
	limiter *rate.Limiter

	// slots is this backend's share of the worker pool. Calls that ignore
	// cancellation keep their slot, so a hung backend exhausts only its share.
	slots *semaphore.Weighted
}

// errSaturated means no worker slot freed up before the call's deadline.
var errSaturated = errors.New("worker pool saturated")

// Coordinator dispatches a query to all active backends concurrently.
// Every call runs under its backend's circuit breaker and timeout, and all
// calls share one bounded worker pool in which each backend may hold at most
// an equal share. Breaker state lives for the lifetime of the Coordinator.
type Coordinator struct {
	backends     map[MatchType]*registered
	order        []MatchType
	pool         *semaphore.Weighted
	joinOverhead time.Duration

	observer Observer
	logger   *slog.Logger
	clock    func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorObserver sets the observer notified of backend outcomes.
func WithCoordinatorObserver(o Observer) CoordinatorOption {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBreakerClock sets the clock used by circuit breakers, for tests.
func WithBreakerClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.clock = now
	}
}

// NewCoordinator registers backends against the backend table in cfg.
// A backend with no table row uses the default row for its type.
func NewCoordinator(backends []Backend, cfg Config, opts ...CoordinatorOption) (*Coordinator, error) {
	c := &Coordinator{
		backends:     make(map[MatchType]*registered, len(backends)),
		joinOverhead: cfg.JoinOverhead,
		observer:     NopObserver{},
		logger:       slog.Default(),
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultConfig().Workers
	}
	c.pool = semaphore.NewWeighted(int64(workers))
	share := int64(max(1, workers/max(1, len(backends))))

	defaults := DefaultConfig()
	for _, b := range backends {
		if b == nil {
			return nil, fmt.Errorf("%w: backend is nil", ferrors.ErrNilDependency)
		}
		t := b.Type()
		if _, dup := c.backends[t]; dup {
			return nil, ferrors.ConfigError("backend "+t.String()+" registered twice", nil)
		}

		spec, ok := cfg.Spec(t)
		if !ok {
			spec, _ = defaults.Spec(t)
		}
		if spec.Timeout <= 0 {
			return nil, ferrors.ConfigError("backend "+t.String()+" has no timeout", nil)
		}

		r := &registered{
			backend: b,
			spec:    spec,
			breaker: ferrors.NewCircuitBreaker(t.String(),
				ferrors.WithMaxFailures(cfg.Breaker.FailureThreshold),
				ferrors.WithFailureWindow(cfg.Breaker.Window),
				ferrors.WithResetTimeout(cfg.Breaker.Cooldown),
				ferrors.WithClock(c.clock),
				ferrors.WithStateChangeHook(c.logTransition),
			),
			slots: semaphore.NewWeighted(share),
		}
		if spec.RatePerSec > 0 {
			burst := spec.Burst
			if burst <= 0 {
				burst = 1
			}
			r.limiter = rate.NewLimiter(rate.Limit(spec.RatePerSec), burst)
		}

		c.backends[t] = r
		c.order = append(c.order, t)
	}

	sort.SliceStable(c.order, func(i, j int) bool {
		return c.Priority(c.order[i]) < c.Priority(c.order[j])
	})

	return c, nil
}

// Priority returns the tie-break priority of t (lower wins).
func (c *Coordinator) Priority(t MatchType) int {
	if r, ok := c.backends[t]; ok {
		return r.spec.Priority
	}
	return int(t) + 1000
}

// Enabled returns the registered, enabled backends in priority order.
func (c *Coordinator) Enabled() []MatchType {
	out := make([]MatchType, 0, len(c.order))
	for _, t := range c.order {
		if c.backends[t].spec.Enabled {
			out = append(out, t)
		}
	}
	return out
}

// Registered reports whether a backend of type t was registered.
func (c *Coordinator) Registered(t MatchType) bool {
	_, ok := c.backends[t]
	return ok
}

// Breakers returns every backend's breaker state in priority order.
func (c *Coordinator) Breakers() []BreakerStatus {
	out := make([]BreakerStatus, 0, len(c.order))
	for _, t := range c.order {
		b := c.backends[t].breaker
		out = append(out, BreakerStatus{Backend: t, State: b.State().String(), Failures: b.Failures()})
	}
	return out
}

// ResetBreakers closes every breaker, e.g. after the index was rebuilt.
func (c *Coordinator) ResetBreakers() {
	for _, r := range c.backends {
		r.breaker.Reset()
	}
}

// Execute runs q against every active backend and waits until each has
// succeeded, failed or timed out, bounded by the longest backend timeout
// plus the join overhead. It fails with AllBackendsFailed when no backend
// succeeded, and with ctx's error when the caller cancelled.
func (c *Coordinator) Execute(ctx context.Context, q Query) (*PartialResults, error) {
	active := c.active(q)
	if len(active) == 0 {
		return nil, ferrors.AllBackendsFailed(errors.New("no enabled backend selected"))
	}

	joinCtx, cancel := context.WithTimeout(ctx, c.ceiling(q, active))
	defer cancel()

	reports := make([]BackendReport, len(active))
	found := make([][]RawMatch, len(active))

	g, gctx := errgroup.WithContext(joinCtx)
	for i, r := range active {
		permit, err := r.breaker.Acquire()
		if err != nil {
			reports[i] = BackendReport{
				Backend: r.spec.Type,
				Outcome: OutcomeCircuitOpen,
				Err:     ferrors.BackendSkipped(r.spec.Type.String()),
			}
			continue
		}

		g.Go(func() error {
			// Never return an error: one backend failing must not cancel the others.
			found[i], reports[i] = c.call(ctx, gctx, r, permit, q)
			return nil
		})
	}
	_ = g.Wait()

	results := &PartialResults{
		ByBackend: make(map[MatchType][]RawMatch, len(active)),
		Reports:   reports,
	}
	var causes []error
	for i, rep := range reports {
		c.observer.BackendFinished(q.ID, rep)
		if rep.Outcome == OutcomeSuccess {
			results.ByBackend[rep.Backend] = found[i]
		} else if rep.Err != nil {
			causes = append(causes, rep.Err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results.ByBackend) == 0 {
		return nil, ferrors.AllBackendsFailed(causes...)
	}
	return results, nil
}

// active returns the registered, enabled backends q allows, in priority order.
func (c *Coordinator) active(q Query) []*registered {
	out := make([]*registered, 0, len(c.order))
	for _, t := range c.order {
		r := c.backends[t]
		if r.spec.Enabled && q.Allows(t) {
			out = append(out, r)
		}
	}
	return out
}

// ceiling bounds the whole join: the longest effective timeout plus overhead.
func (c *Coordinator) ceiling(q Query, active []*registered) time.Duration {
	var longest time.Duration
	for _, r := range active {
		if d := q.TimeoutFor(r.spec.Type, r.spec.Timeout); d > longest {
			longest = d
		}
	}
	return longest + c.joinOverhead
}

// call performs one backend invocation and settles its breaker permit.
func (c *Coordinator) call(parent, gctx context.Context, r *registered, permit *ferrors.Permit, q Query) ([]RawMatch, BackendReport) {
	t := r.spec.Type
	bctx, cancel := context.WithTimeout(gctx, q.TimeoutFor(t, r.spec.Timeout))
	defer cancel()

	start := time.Now()
	matches, err := c.invoke(bctx, r, q)
	report := BackendReport{Backend: t, Latency: time.Since(start)}

	switch {
	case err == nil:
		permit.Success()
		matches = sanitize(matches, t)
		report.Outcome = OutcomeSuccess
		report.Matches = len(matches)
		return matches, report

	case parent.Err() != nil:
		// The caller gave up; this says nothing about backend health.
		permit.Release()
		report.Outcome = OutcomeCancelled
		report.Err = parent.Err()

	case errors.Is(err, errSaturated):
		// The backend was never called for this query.
		permit.Release()
		report.Outcome = OutcomeSaturated
		report.Err = ferrors.BackendSkipped(t.String())
		c.logger.Warn("backend_saturated",
			slog.String("backend", t.String()),
			slog.String("query_id", q.ID))

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(bctx.Err(), context.DeadlineExceeded):
		permit.Failure()
		report.Outcome = OutcomeTimeout
		report.Err = ferrors.BackendTimeout(t.String(), err)

	default:
		permit.Failure()
		report.Outcome = OutcomeError
		report.Err = ferrors.BackendError(t.String(), err)
	}

	return nil, report
}

// invoke runs the backend on the worker pool. It returns as soon as ctx is
// done, even if the backend ignores cancellation; both slots are held until
// the backend actually returns.
func (c *Coordinator) invoke(ctx context.Context, r *registered, q Query) ([]RawMatch, error) {
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return nil, errSaturated
	}
	if err := c.pool.Acquire(ctx, 1); err != nil {
		r.slots.Release(1)
		return nil, errSaturated
	}
	release := func() {
		c.pool.Release(1)
		r.slots.Release(1)
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			release()
			if ctx.Err() == nil {
				// Wait refuses up front when the reservation would outlive the deadline.
				err = fmt.Errorf("rate limit: %w", context.DeadlineExceeded)
			}
			return nil, err
		}
	}

	type outcome struct {
		matches []RawMatch
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer release()
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("backend panic: %v", p)}
			}
		}()
		m, err := r.backend.Search(ctx, q)
		done <- outcome{matches: m, err: err}
	}()

	select {
	case o := <-done:
		return o.matches, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// sanitize stamps the origin type and clamps scores into [0,1].
func sanitize(matches []RawMatch, t MatchType) []RawMatch {
	if matches == nil {
		return []RawMatch{}
	}
	for i := range matches {
		matches[i].Type = t
		switch {
		case math.IsNaN(matches[i].Score) || matches[i].Score < 0:
			matches[i].Score = 0
		case matches[i].Score > 1:
			matches[i].Score = 1
		}
	}
	return matches
}

func (c *Coordinator) logTransition(name string, from, to ferrors.State) {
	level := slog.LevelInfo
	if to == ferrors.StateOpen {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "circuit_breaker_transition",
		slog.String("backend", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
}
