package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"
)

type snapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// poll diffs periodic scans of the tree until ctx is done or Stop is called.
func (w *Watcher) poll(ctx context.Context) error {
	prev := w.snapshot()
	w.opts.Logger.Info("watcher_started", slog.String("root", w.root), slog.String("mode", w.Mode()))

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			cur := w.snapshot()
			for _, e := range diff(prev, cur) {
				w.add(e)
			}
			prev = cur
		}
	}
}

// snapshot records every non-ignored entry below the root.
func (w *Watcher) snapshot() map[string]snapshot {
	state := make(map[string]snapshot)
	_ = filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, ok := w.rel(p)
		if !ok {
			return nil
		}
		if d.IsDir() && w.ignored(rel, true) {
			return filepath.SkipDir
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[rel] = snapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return state
}

// diff turns two snapshots into create, modify and delete events.
// Directory modifications are not reported.
func diff(prev, cur map[string]snapshot) []FileEvent {
	now := time.Now()
	var events []FileEvent
	for rel, s := range cur {
		old, existed := prev[rel]
		switch {
		case !existed:
			events = append(events, FileEvent{Path: rel, Operation: OpCreate, IsDir: s.isDir, Timestamp: now})
		case !s.isDir && (!old.modTime.Equal(s.modTime) || old.size != s.size):
			events = append(events, FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel, s := range prev {
		if _, ok := cur[rel]; !ok {
			events = append(events, FileEvent{Path: rel, Operation: OpDelete, IsDir: s.isDir, Timestamp: now})
		}
	}
	return events
}
