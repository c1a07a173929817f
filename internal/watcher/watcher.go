// Package watcher reports file changes below a project root as debounced
// batches. It watches with fsnotify and falls back to polling where
// fsnotify is unavailable (network mounts, some containers).
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation is the kind of change.
type Operation int

const (
	// OpCreate is a new file or directory.
	OpCreate Operation = iota
	// OpModify is a content change.
	OpModify
	// OpDelete is a removal. fsnotify reports the old name of a rename as
	// a delete; the new name arrives as a create.
	OpDelete
	// OpRename moves OldPath to Path.
	OpRename
	// OpGitignoreChange is any change to a .gitignore file; the index
	// reconciles against a full scan.
	OpGitignoreChange
	// OpConfigChange is a change to a project config file.
	OpConfigChange
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change.
type FileEvent struct {
	// Path is relative to the root and slash separated.
	Path string

	// OldPath is the previous path of a rename.
	OldPath string

	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// IgnoreFunc reports whether a relative path is excluded from the index.
type IgnoreFunc func(rel string, isDir bool) bool

// DefaultConfigFiles are the names that produce OpConfigChange.
var DefaultConfigFiles = []string{".fusesearch.yaml", ".fusesearch.yml", ".fusesearch.toml"}

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a batch is emitted (default 200ms).
	Debounce time.Duration

	// PollInterval is the scan interval in polling mode (default 5s).
	PollInterval time.Duration

	// BufferSize is the number of batches buffered (default 64). Batches
	// beyond it are dropped and counted.
	BufferSize int

	// ForcePolling skips fsnotify.
	ForcePolling bool

	// Ignore filters paths; nil watches everything except .git and the
	// index directory.
	Ignore IgnoreFunc

	// ConfigFiles defaults to DefaultConfigFiles.
	ConfigFiles []string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		Debounce:     200 * time.Millisecond,
		PollInterval: 5 * time.Second,
		BufferSize:   64,
		ConfigFiles:  DefaultConfigFiles,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	if o.ConfigFiles == nil {
		o.ConfigFiles = d.ConfigFiles
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// alwaysIgnored directories are never watched.
var alwaysIgnored = map[string]bool{".git": true, ".fusesearch": true}

// Watcher watches one root.
type Watcher struct {
	opts      Options
	root      string
	fsw       *fsnotify.Watcher // nil in polling mode
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
	dropped atomic.Uint64
}

// New creates a watcher for root. It does not start watching.
func New(root string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	opts = opts.withDefaults()
	w := &Watcher{
		opts:      opts,
		root:      abs,
		debouncer: NewDebouncer(opts.Debounce),
		events:    make(chan []FileEvent, opts.BufferSize),
		errors:    make(chan error, 16),
		stopCh:    make(chan struct{}),
	}
	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			opts.Logger.Warn("watcher_fsnotify_unavailable",
				slog.String("error", err.Error()),
				slog.String("fallback", "polling"))
		} else {
			w.fsw = fsw
		}
	}
	return w, nil
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string { return w.root }

// Events returns debounced batches. It is closed by Stop.
func (w *Watcher) Events() <-chan []FileEvent { return w.events }

// Errors returns non-fatal watch errors. It is closed by Stop.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Dropped returns the number of batches dropped on a full buffer.
func (w *Watcher) Dropped() uint64 { return w.dropped.Load() }

// Run watches until ctx is cancelled or Stop is called, then stops.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.Stop() }()

	go w.forward()

	if w.fsw == nil {
		return w.poll(ctx)
	}
	if err := w.addTree(w.root); err != nil {
		// Usually the open file limit. Polling needs no descriptors.
		w.opts.Logger.Warn("watcher_fsnotify_add_failed",
			slog.String("error", err.Error()),
			slog.String("fallback", "polling"))
		w.mu.Lock()
		_ = w.fsw.Close()
		w.fsw = nil
		w.mu.Unlock()
		return w.poll(ctx)
	}
	w.opts.Logger.Info("watcher_started", slog.String("root", w.root), slog.String("mode", w.Mode()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handle converts an fsnotify event.
func (w *Watcher) handle(ev fsnotify.Event) {
	rel, ok := w.rel(ev.Name)
	if !ok {
		return
	}
	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreate
		if isDir && !w.ignored(rel, true) {
			if err := w.addTree(ev.Name); err != nil {
				w.emitError(err)
			}
		}
	case ev.Op.Has(fsnotify.Write):
		op = OpModify
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return // chmod
	}
	w.add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// add classifies and filters an event before debouncing it.
func (w *Watcher) add(e FileEvent) {
	base := path.Base(e.Path)
	switch {
	case base == ".gitignore":
		e.Operation, e.IsDir = OpGitignoreChange, false
	case w.isConfig(base):
		e.Operation, e.IsDir = OpConfigChange, false
	case w.ignored(e.Path, e.IsDir):
		return
	}
	w.debouncer.Add(e)
}

func (w *Watcher) isConfig(base string) bool {
	for _, name := range w.opts.ConfigFiles {
		if base == name {
			return true
		}
	}
	return false
}

func (w *Watcher) ignored(rel string, isDir bool) bool {
	for dir := rel; dir != "."; dir = path.Dir(dir) {
		if alwaysIgnored[path.Base(dir)] && (dir != rel || isDir) {
			return true
		}
	}
	return w.opts.Ignore != nil && w.opts.Ignore(rel, isDir)
}

func (w *Watcher) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addTree watches dir and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(p); ok && w.ignored(rel, true) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// CountDirs returns how many directories a watcher on root would hold a
// descriptor for, not counting ignore rules beyond the built-in ones.
func CountDirs(root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && alwaysIgnored[d.Name()] {
			return filepath.SkipDir
		}
		n++
		return nil
	})
	return n, err
}

// forward moves debounced batches to the output channel.
func (w *Watcher) forward() {
	for batch := range w.debouncer.Output() {
		w.emit(batch)
	}
}

func (w *Watcher) emit(batch []FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || len(batch) == 0 {
		return
	}
	select {
	case w.events <- batch:
	default:
		n := w.dropped.Add(1)
		w.opts.Logger.Warn("watcher_batch_dropped",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped", n))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop releases resources and closes both channels. It is safe to call
// more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
	}
	close(w.events)
	close(w.errors)
	return err
}
