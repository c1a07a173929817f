package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/fusesearch/internal/ui"
)

// MarkerFile exists in the data directory while a build runs. A marker
// left behind means a build was killed before it finished.
const MarkerFile = "building"

// BuildFunc does the work, reporting progress into r.
type BuildFunc func(ctx context.Context, r ui.Renderer) error

// Builder runs one build in a background goroutine.
type Builder struct {
	marker   string
	build    BuildFunc
	progress *Progress
	renderer ui.Renderer
	logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	err     error
}

// Option configures a Builder.
type Option func(*Builder)

// WithRenderer also reports progress to r, for example a terminal.
func WithRenderer(r ui.Renderer) Option {
	return func(b *Builder) { b.renderer = r }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a builder that keeps its marker in dataDir.
func NewBuilder(dataDir string, build BuildFunc, opts ...Option) *Builder {
	b := &Builder{
		marker:   filepath.Join(dataDir, MarkerFile),
		build:    build,
		progress: NewProgress(),
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Progress returns the tracker of this build.
func (b *Builder) Progress() *Progress { return b.progress }

// Done is closed when the build has ended.
func (b *Builder) Done() <-chan struct{} { return b.doneCh }

// Start runs the build in the background. A second call is a no-op.
func (b *Builder) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	go b.run(ctx)
}

func (b *Builder) run(ctx context.Context) {
	defer close(b.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	err := b.runMarked(ctx)
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()

	if err != nil {
		b.progress.SetError(err.Error())
		if !errors.Is(err, context.Canceled) {
			b.logger.Error("background_build_failed", slog.String("error", err.Error()))
		}
		return
	}
	b.progress.SetReady()
	snap := b.progress.Snapshot()
	b.logger.Info("background_build_complete",
		slog.Int("files", snap.Files),
		slog.Int("chunks", snap.Chunks),
		slog.Duration("duration", time.Since(start)))
}

func (b *Builder) runMarked(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(b.marker), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := os.WriteFile(b.marker, []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		return fmt.Errorf("write build marker: %w", err)
	}
	defer func() { _ = os.Remove(b.marker) }()

	var r ui.Renderer = b.progress
	if b.renderer != nil {
		r = tee{b.progress, b.renderer}
	}
	return b.build(ctx, r)
}

// Stop cancels a running build and waits for it to end.
func (b *Builder) Stop() {
	b.mu.Lock()
	if !b.started || b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	close(b.stopCh)
	<-b.doneCh
}

// Wait blocks until the build ends and returns its error.
func (b *Builder) Wait() error {
	<-b.doneCh
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Interrupted reports whether dataDir holds the marker of a build that
// never finished.
func Interrupted(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, MarkerFile))
	return err == nil
}

// tee forwards every event to both renderers.
type tee [2]ui.Renderer

func (t tee) Start(ctx context.Context) error {
	return errors.Join(t[0].Start(ctx), t[1].Start(ctx))
}

func (t tee) UpdateProgress(e ui.ProgressEvent) {
	t[0].UpdateProgress(e)
	t[1].UpdateProgress(e)
}

func (t tee) AddError(e ui.ErrorEvent) {
	t[0].AddError(e)
	t[1].AddError(e)
}

func (t tee) Complete(s ui.CompletionStats) {
	t[0].Complete(s)
	t[1].Complete(s)
}

func (t tee) Stop() error {
	return errors.Join(t[0].Stop(), t[1].Stop())
}
