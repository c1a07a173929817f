package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "GITIGNORE_CHANGE", OpGitignoreChange.String())
	assert.Equal(t, "CONFIG_CHANGE", OpConfigChange.String())
	assert.Equal(t, "UNKNOWN", Operation(99).String())
}

func TestNew_RejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{})

	assert.Error(t, err)
}

func TestNew_RejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(file, Options{})

	assert.Error(t, err)
}

// pollingWatcher returns a watcher whose classification can be driven
// directly through add.
func pollingWatcher(t *testing.T, ignore IgnoreFunc) *Watcher {
	t.Helper()
	w, err := New(t.TempDir(), Options{ForcePolling: true, Debounce: time.Hour, Ignore: ignore})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	assert.Equal(t, "polling", w.Mode())
	return w
}

func flushed(t *testing.T, w *Watcher) []FileEvent {
	t.Helper()
	w.debouncer.Flush()
	select {
	case batch := <-w.debouncer.Output():
		return batch
	default:
		return nil
	}
}

func TestWatcher_ClassifiesSpecialFiles(t *testing.T) {
	// Given: a watcher
	w := pollingWatcher(t, nil)

	// When: a .gitignore, a config file and a source file change
	w.add(FileEvent{Path: "sub/.gitignore", Operation: OpModify})
	w.add(FileEvent{Path: ".fusesearch.yaml", Operation: OpModify})
	w.add(FileEvent{Path: "main.go", Operation: OpModify})

	// Then: the special files carry their own operations
	batch := flushed(t, w)
	require.Len(t, batch, 3)
	assert.Equal(t, OpConfigChange, batch[0].Operation)
	assert.Equal(t, OpModify, batch[1].Operation)
	assert.Equal(t, OpGitignoreChange, batch[2].Operation)
}

func TestWatcher_FiltersIgnoredPaths(t *testing.T) {
	// Given: a watcher ignoring *.log
	w := pollingWatcher(t, func(rel string, isDir bool) bool {
		return strings.HasSuffix(rel, ".log")
	})

	// When: events for ignored and internal paths arrive
	w.add(FileEvent{Path: "debug.log", Operation: OpModify})
	w.add(FileEvent{Path: ".git/HEAD", Operation: OpModify})
	w.add(FileEvent{Path: ".fusesearch/terms.db", Operation: OpModify})
	w.add(FileEvent{Path: "app.go", Operation: OpCreate})

	// Then: only the source file passes
	batch := flushed(t, w)
	require.Len(t, batch, 1)
	assert.Equal(t, "app.go", batch[0].Path)
}

func TestDiff(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := map[string]snapshot{
		"same.go":    {modTime: t0, size: 1},
		"changed.go": {modTime: t0, size: 1},
		"gone.go":    {modTime: t0, size: 1},
		"dir":        {modTime: t0, isDir: true},
	}
	cur := map[string]snapshot{
		"same.go":    {modTime: t0, size: 1},
		"changed.go": {modTime: t0.Add(time.Second), size: 1},
		"new.go":     {modTime: t0, size: 2},
		"dir":        {modTime: t0.Add(time.Second), isDir: true},
	}

	got := map[string]Operation{}
	for _, e := range diff(prev, cur) {
		got[e.Path] = e.Operation
	}

	assert.Equal(t, map[string]Operation{
		"changed.go": OpModify,
		"new.go":     OpCreate,
		"gone.go":    OpDelete,
	}, got)
}

// waitFor reads batches until one contains an event for path.
func waitFor(t *testing.T, w *Watcher, path string) FileEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch, ok := <-w.Events():
			require.True(t, ok, "events closed")
			for _, e := range batch {
				if e.Path == path {
					return e
				}
			}
		case <-deadline:
			t.Fatalf("no event for %s", path)
		}
	}
}

func runWatcher(t *testing.T, root string, opts Options) *Watcher {
	t.Helper()
	w, err := New(root, opts)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return w
}

func TestWatcher_Fsnotify_ReportsChanges(t *testing.T) {
	// Given: a running watcher over a project
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.go"), []byte("package a"), 0o644))
	w := runWatcher(t, root, Options{Debounce: 20 * time.Millisecond})
	if w.Mode() != "fsnotify" {
		t.Skip("fsnotify unavailable")
	}

	// When: a file is created
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.go"), []byte("package a"), 0o644))

	// Then: a create arrives with a relative path
	e := waitFor(t, w, "new.go")
	assert.Equal(t, OpCreate, e.Operation)

	// When: a file is removed
	require.NoError(t, os.Remove(filepath.Join(root, "old.go")))

	// Then: a delete arrives
	e = waitFor(t, w, "old.go")
	assert.Equal(t, OpDelete, e.Operation)
}

func TestWatcher_Fsnotify_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := runWatcher(t, root, Options{Debounce: 20 * time.Millisecond})
	if w.Mode() != "fsnotify" {
		t.Skip("fsnotify unavailable")
	}

	require.NoError(t, os.Mkdir(filepath.Join(root, "pkg"), 0o755))
	waitFor(t, w, "pkg")
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.go"), []byte("package pkg"), 0o644))

	e := waitFor(t, w, "pkg/a.go")
	assert.Contains(t, []Operation{OpCreate, OpModify}, e.Operation)
}

func TestWatcher_Polling_ReportsChanges(t *testing.T) {
	// Given: a polling watcher
	root := t.TempDir()
	w := runWatcher(t, root, Options{
		ForcePolling: true,
		PollInterval: 30 * time.Millisecond,
		Debounce:     10 * time.Millisecond,
	})

	// When: a file is created
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a"), 0o644))

	// Then: the poller reports it
	e := waitFor(t, w, "a.go")
	assert.Equal(t, OpCreate, e.Operation)
}

func TestWatcher_StopClosesChannels(t *testing.T) {
	w, err := New(t.TempDir(), Options{})
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}

func TestCountDirs(t *testing.T) {
	// Given: a tree with nested and always-ignored directories
	root := t.TempDir()
	for _, d := range []string{"a/b", "c", ".git/objects", ".fusesearch"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}

	// When
	n, err := CountDirs(root)

	// Then: root, a, a/b and c are counted
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = CountDirs(filepath.Join(root, "missing"))
	assert.Error(t, err)
}
