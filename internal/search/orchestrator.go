package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	ferrors "github.com/Aman-CERP/fusesearch/internal/errors"
)

// Orchestrator is the entry point of the search core. It is safe for
// concurrent use; the cache and the circuit breakers are shared by every
// call for the lifetime of the Orchestrator.
type Orchestrator struct {
	cfg         Config
	coordinator *Coordinator
	expander    *Expander
	fusion      *Fusion
	cache       *Cache // nil when caching is disabled

	observer Observer
	logger   *slog.Logger
	newID    func() string
}

type orchestratorOptions struct {
	observer Observer
	logger   *slog.Logger
	clock    func() time.Time
	newID    func() string
}

// Option configures an Orchestrator.
type Option func(*orchestratorOptions)

// WithObserver sets the observer receiving backend, cache and query events.
func WithObserver(o Observer) Option {
	return func(opts *orchestratorOptions) {
		opts.observer = o
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(opts *orchestratorOptions) {
		opts.logger = l
	}
}

// WithClock sets the clock driving circuit breaker cool-downs.
func WithClock(now func() time.Time) Option {
	return func(opts *orchestratorOptions) {
		opts.clock = now
	}
}

// WithQueryIDs overrides query id generation.
func WithQueryIDs(gen func() string) Option {
	return func(opts *orchestratorOptions) {
		opts.newID = gen
	}
}

// NewOrchestrator wires the coordinator, expander, fusion and cache for
// backends. reader is used to expand matches into context windows.
func NewOrchestrator(backends []Backend, reader FileReader, cfg Config, opts ...Option) (*Orchestrator, error) {
	if reader == nil {
		return nil, fmt.Errorf("%w: file reader is nil", ferrors.ErrNilDependency)
	}

	o := orchestratorOptions{
		observer: NopObserver{},
		logger:   slog.Default(),
		clock:    time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	coordinator, err := NewCoordinator(backends, cfg,
		WithCoordinatorObserver(o.observer),
		WithCoordinatorLogger(o.logger),
		WithBreakerClock(o.clock),
	)
	if err != nil {
		return nil, err
	}

	var cache *Cache
	if cfg.CacheEnabled {
		cache, err = NewCache(cfg.CacheCapacity)
		if err != nil {
			return nil, ferrors.InternalError("create search cache", err)
		}
	}

	return &Orchestrator{
		cfg:         cfg,
		coordinator: coordinator,
		expander:    NewExpander(reader, cfg.ChunkLines),
		fusion:      NewFusion(cfg),
		cache:       cache,
		observer:    o.observer,
		logger:      o.logger,
		newID:       o.newID,
	}, nil
}

// Search runs the full pipeline for rawQuery: normalize, consult the
// cache, dispatch to the backends, expand every surviving match, fuse,
// populate the cache when every backend answered.
//
// Only InvalidQuery and AllBackendsFailed end a call with an error (plus
// ctx's error when the caller cancels). Backend failures and unreadable
// source files shrink the result list and are reported to the observer
// and the log.
func (o *Orchestrator) Search(ctx context.Context, rawQuery string, opts SearchOptions) (results []FusedResult, err error) {
	id := o.newID()
	start := time.Now()
	summary := QuerySummary{Query: rawQuery}
	defer func() {
		summary.Latency = time.Since(start)
		summary.Results = len(results)
		summary.Err = err
		o.observer.QueryFinished(id, summary)
	}()

	q, err := o.buildQuery(id, rawQuery, opts)
	if err != nil {
		return nil, err
	}
	summary.Query = q.Text

	useCache := o.cache != nil && !opts.NoCache
	var (
		key string
		gen uint64
	)
	if useCache {
		key = CacheKey(q)
		gen = o.cache.Generation()
		if cached, ok := o.cache.Get(key); ok {
			o.observer.CacheLookup(id, true)
			summary.CacheHit = true
			return cached, nil
		}
		o.observer.CacheLookup(id, false)
	}

	partial, err := o.coordinator.Execute(ctx, q)
	if err != nil {
		return nil, err
	}

	expanded, dropped := o.expander.ExpandAll(ctx, o.flatten(partial))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, derr := range dropped {
		attrs := append([]slog.Attr{slog.String("query_id", id)}, ferrors.LogAttrs(derr)...)
		o.logger.LogAttrs(ctx, slog.LevelWarn, "match_dropped", attrs...)
	}

	byBackend := make(map[MatchType][]RawMatch, len(partial.ByBackend))
	for _, m := range expanded {
		byBackend[m.Type] = append(byBackend[m.Type], m)
	}
	results = o.fusion.Fuse(q.Text, byBackend, q.Limit)

	switch {
	case !useCache:
	case !partial.Complete():
		// A degraded list would outlive the backend's recovery.
		o.logger.Debug("cache_store_skipped",
			slog.String("query_id", id),
			slog.String("reason", "backend degraded"))
	case !o.cache.PutAt(gen, key, results):
		o.logger.Debug("cache_store_skipped",
			slog.String("query_id", id),
			slog.String("reason", "invalidated during search"))
	}
	return results, nil
}

// buildQuery normalizes and validates the caller's input.
func (o *Orchestrator) buildQuery(id, rawQuery string, opts SearchOptions) (Query, error) {
	text, err := NormalizeQuery(rawQuery, o.cfg.MaxQueryLength)
	if err != nil {
		return Query{}, err
	}
	if opts.Timeout < 0 {
		return Query{}, ferrors.InvalidQuery("timeout must not be negative")
	}
	for t, d := range opts.Timeouts {
		if d < 0 {
			return Query{}, ferrors.InvalidQuery("timeout for " + t.String() + " must not be negative")
		}
	}

	backends, err := o.selectBackends(opts.Backends)
	if err != nil {
		return Query{}, err
	}

	return Query{
		ID:       id,
		Text:     text,
		Limit:    clampLimit(opts.Limit, o.cfg.DefaultLimit, o.cfg.MaxLimit),
		Backends: backends,
		Timeout:  opts.Timeout,
		Timeouts: opts.Timeouts,
	}, nil
}

// selectBackends resolves the allow-list against the enabled backends.
// An empty allow-list selects every enabled backend.
func (o *Orchestrator) selectBackends(requested []MatchType) ([]MatchType, error) {
	enabled := o.coordinator.Enabled()
	if len(requested) == 0 {
		return enabled, nil
	}

	allowed := make(map[MatchType]bool, len(enabled))
	for _, t := range enabled {
		allowed[t] = true
	}
	for _, t := range requested {
		if !allowed[t] {
			return nil, ferrors.InvalidQuery("backend " + t.String() + " is not enabled").
				WithDetail("backend", t.String())
		}
	}
	return dedupeTypes(requested, o.coordinator.Priority), nil
}

// flatten lists the matches of every successful backend in priority order.
func (o *Orchestrator) flatten(p *PartialResults) []RawMatch {
	out := make([]RawMatch, 0, p.Total())
	for _, rep := range p.Reports {
		out = append(out, p.ByBackend[rep.Backend]...)
	}
	return out
}

// InvalidateAll empties the result cache.
func (o *Orchestrator) InvalidateAll() {
	if o.cache != nil {
		o.cache.InvalidateAll()
	}
}

// InvalidateFiles drops cached result lists referencing any of paths and
// returns how many were dropped.
func (o *Orchestrator) InvalidateFiles(paths []string) int {
	if o.cache == nil || len(paths) == 0 {
		return 0
	}
	return o.cache.InvalidatePaths(paths...)
}

// BreakerStates returns a snapshot of every backend's circuit breaker.
func (o *Orchestrator) BreakerStates() []BreakerStatus {
	return o.coordinator.Breakers()
}

// ResetBreakers closes every circuit breaker.
func (o *Orchestrator) ResetBreakers() {
	o.coordinator.ResetBreakers()
}

// CacheStats returns the cache counters, or zero values when caching is off.
func (o *Orchestrator) CacheStats() CacheStats {
	if o.cache == nil {
		return CacheStats{}
	}
	return o.cache.Stats()
}

// Backends returns the enabled backends in priority order.
func (o *Orchestrator) Backends() []MatchType {
	return o.coordinator.Enabled()
}

// Config returns the configuration the Orchestrator was built with.
func (o *Orchestrator) Config() Config {
	return o.cfg
}
