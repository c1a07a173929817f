package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/fusesearch/internal/backend"
	"github.com/Aman-CERP/fusesearch/internal/config"
	"github.com/Aman-CERP/fusesearch/internal/embed"
	"github.com/Aman-CERP/fusesearch/internal/index"
	"github.com/Aman-CERP/fusesearch/internal/scanner"
	"github.com/Aman-CERP/fusesearch/internal/search"
	"github.com/Aman-CERP/fusesearch/internal/telemetry"
	"github.com/Aman-CERP/fusesearch/internal/ui"
	"github.com/Aman-CERP/fusesearch/internal/watcher"
)

// Engine is an opened project.
type Engine struct {
	root     string
	cfg      *config.Config
	scanner  *scanner.Scanner
	stores   *index.Stores
	embedder *embed.CachedEmbedder
	orch     *search.Orchestrator
	stats    *telemetry.Collector
	updater  *index.Updater
	logger   *slog.Logger
}

type options struct {
	cfg       *config.Config
	logger    *slog.Logger
	inMemory  bool
	observers []search.Observer
	telemetry telemetry.Config
}

// Option configures Open.
type Option func(*options)

// WithConfig uses cfg instead of loading the project's configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMemoryIndex keeps every index in memory. Nothing is written below
// the project root.
func WithMemoryIndex() Option {
	return func(o *options) { o.inMemory = true }
}

// WithObserver adds an observer next to the built-in telemetry collector.
func WithObserver(obs search.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// WithTelemetry configures the telemetry collector.
func WithTelemetry(cfg telemetry.Config) Option {
	return func(o *options) { o.telemetry = cfg }
}

// Open loads the configuration of the project at root, opens its index
// (creating an empty one when missing) and builds the search pipeline.
func Open(root string, opts ...Option) (*Engine, error) {
	o := options{telemetry: telemetry.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	cfg := o.cfg
	if cfg == nil {
		if cfg, err = config.Load(abs); err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sc, err := scanner.New(scanner.Options{
		Root:             abs,
		Exclude:          cfg.Paths.Exclude,
		RespectGitignore: true,
		MaxFileSize:      cfg.Chunk.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}

	dims := cfg.Embeddings.Dimensions
	var stores *index.Stores
	if o.inMemory {
		stores, err = index.OpenMemory(dims)
	} else {
		stores, err = index.Open(abs, dims)
	}
	if err != nil {
		return nil, err
	}

	e := &Engine{
		root:    abs,
		cfg:     cfg,
		scanner: sc,
		stores:  stores,
		stats:   telemetry.NewCollector(o.telemetry),
		logger:  o.logger,
	}
	if err := e.init(o); err != nil {
		_ = stores.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) init(o options) error {
	var err error
	e.embedder, err = embed.NewCachedEmbedder(embed.NewStaticEmbedder(e.cfg.Embeddings.Dimensions), e.cfg.Embeddings.CacheSize)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}

	backends, err := e.backends()
	if err != nil {
		return err
	}

	observers := append(search.MultiObserver{e.stats, search.LogObserver{Logger: e.logger}}, o.observers...)
	e.orch, err = search.NewOrchestrator(backends, search.OSFileReader{Root: e.root}, search.ConfigFrom(e.cfg),
		search.WithObserver(observers),
		search.WithLogger(e.logger),
	)
	if err != nil {
		return err
	}

	e.updater, err = index.NewUpdater(e.dependencies(nil))
	return err
}

// backends builds one backend per match type. Disabled ones are skipped
// by the orchestrator, not here, so a reconfigured table needs no rebuild.
func (e *Engine) backends() ([]search.Backend, error) {
	exact, err := backend.NewExact(e.scanner, backend.WithChunkLines(e.cfg.Chunk.Lines))
	if err != nil {
		return nil, err
	}
	fulltext, err := backend.NewFullText(e.stores.FullText)
	if err != nil {
		return nil, err
	}
	termfreq, err := backend.NewTermFrequency(e.stores.Terms)
	if err != nil {
		return nil, err
	}
	semantic, err := backend.NewSemantic(
		backend.WithEmbedder(e.embedder),
		backend.WithVectorStore(e.stores.Vectors),
		backend.WithDocuments(e.stores.Terms),
	)
	if err != nil {
		return nil, err
	}
	return []search.Backend{exact, fulltext, termfreq, semantic}, nil
}

func (e *Engine) dependencies(r ui.Renderer) index.Dependencies {
	return index.Dependencies{
		Scanner:    e.scanner,
		Stores:     e.stores,
		Embedder:   e.embedder,
		Renderer:   r,
		ChunkLines: e.cfg.Chunk.Lines,
		Logger:     e.logger,
	}
}

// Root returns the absolute project root.
func (e *Engine) Root() string { return e.root }

// Config returns the effective configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Stores returns the opened indexes.
func (e *Engine) Stores() *index.Stores { return e.stores }

// Scanner returns the project scanner.
func (e *Engine) Scanner() *scanner.Scanner { return e.scanner }

// Orchestrator returns the search pipeline.
func (e *Engine) Orchestrator() *search.Orchestrator { return e.orch }

// Telemetry returns the in-process query statistics.
func (e *Engine) Telemetry() *telemetry.Collector { return e.stats }

// Search runs one query through the orchestrator.
func (e *Engine) Search(ctx context.Context, query string, opts search.SearchOptions) ([]search.FusedResult, error) {
	return e.orch.Search(ctx, query, opts)
}

// BreakerStates returns the breaker state of every backend.
func (e *Engine) BreakerStates() []search.BreakerStatus { return e.orch.BreakerStates() }

// CacheStats returns the result cache counters.
func (e *Engine) CacheStats() search.CacheStats { return e.orch.CacheStats() }

// Build rebuilds the whole index, reporting progress to r (nil discards
// it), and clears the result cache.
func (e *Engine) Build(ctx context.Context, r ui.Renderer) (*index.Result, error) {
	b, err := index.NewBuilder(e.dependencies(r))
	if err != nil {
		return nil, err
	}
	res, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	e.orch.InvalidateAll()
	return res, nil
}

// Apply updates the index for a batch of file events and drops the cache
// entries they may have made stale. A new file can match any cached query,
// so additions clear the whole cache; other changes drop only the entries
// that reference a changed path.
func (e *Engine) Apply(ctx context.Context, events []watcher.FileEvent) (*index.Update, error) {
	update, err := e.updater.Apply(ctx, events)
	if err != nil {
		return nil, err
	}
	switch {
	case update.Empty():
	case len(update.Added) > 0:
		e.orch.InvalidateAll()
	default:
		n := e.orch.InvalidateFiles(update.Paths())
		e.logger.Debug("cache_invalidated", slog.Int("entries", n), slog.Int("paths", len(update.Paths())))
	}
	return update, nil
}

// Check compares the three indexes against the chunk catalog.
func (e *Engine) Check(ctx context.Context) (*index.CheckResult, error) {
	return index.NewConsistencyChecker(e.stores, e.logger).Check(ctx)
}

// Repair checks the indexes and deletes orphaned entries, then saves the
// vector graph. Entries missing from a store are left for a rebuild.
func (e *Engine) Repair(ctx context.Context) (*index.CheckResult, int, error) {
	if layout := e.stores.Layout; !layout.InMemory() {
		lock := index.NewFileLock(layout.Lock)
		if err := lock.Acquire(); err != nil {
			return nil, 0, err
		}
		defer func() { _ = lock.Unlock() }()
	}

	checker := index.NewConsistencyChecker(e.stores, e.logger)
	res, err := checker.Check(ctx)
	if err != nil || res.Consistent() {
		return res, 0, err
	}
	removed, err := checker.Repair(ctx, res.Inconsistencies)
	if err != nil {
		return res, removed, err
	}
	if removed > 0 {
		e.orch.InvalidateAll()
	}
	return res, removed, e.stores.SaveVectors()
}

// Close releases the indexes and the embedder.
func (e *Engine) Close() error {
	var errs []error
	if e.embedder != nil {
		errs = append(errs, e.embedder.Close())
	}
	errs = append(errs, e.stores.Close())
	return errors.Join(errs...)
}
