package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/Aman-CERP/fusesearch/internal/scanner"
	"github.com/Aman-CERP/fusesearch/internal/watcher"
)

// Update lists the files an Apply changed in the index.
type Update struct {
	Added    []string // not indexed before
	Modified []string
	Removed  []string
}

// Paths returns every affected path.
func (u *Update) Paths() []string {
	out := make([]string, 0, len(u.Added)+len(u.Modified)+len(u.Removed))
	out = append(out, u.Added...)
	out = append(out, u.Modified...)
	return append(out, u.Removed...)
}

// Empty reports whether nothing changed.
func (u *Update) Empty() bool {
	return len(u.Added)+len(u.Modified)+len(u.Removed) == 0
}

// Updater applies file events to an existing index.
type Updater struct {
	w *writer
}

// NewUpdater validates deps.
func NewUpdater(deps Dependencies) (*Updater, error) {
	w, err := newWriter(deps)
	if err != nil {
		return nil, err
	}
	return &Updater{w: w}, nil
}

// Apply re-chunks created and modified files, drops deleted ones and
// reconciles the whole tree when a directory or .gitignore changes.
func (u *Updater) Apply(ctx context.Context, events []watcher.FileEvent) (*Update, error) {
	if len(events) == 0 {
		return &Update{}, nil
	}
	w := u.w
	release, err := w.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	indexedList, err := w.stores.Terms.Paths(ctx)
	if err != nil {
		return nil, err
	}
	indexed := make(map[string]bool, len(indexedList))
	for _, p := range indexedList {
		indexed[p] = true
	}

	upserts := make(map[string]bool)
	deletes := make(map[string]bool)
	reconcile := false

	for _, e := range events {
		p := path.Clean(strings.TrimPrefix(e.Path, "./"))
		switch e.Operation {
		case watcher.OpCreate, watcher.OpModify:
			if e.IsDir {
				reconcile = true
				continue
			}
			upserts[p] = true
		case watcher.OpDelete:
			deletes[p] = true
			for q := range indexed {
				if strings.HasPrefix(q, p+"/") {
					deletes[q] = true
				}
			}
		case watcher.OpRename:
			if e.OldPath != "" {
				old := path.Clean(e.OldPath)
				deletes[old] = true
				for q := range indexed {
					if strings.HasPrefix(q, old+"/") {
						deletes[q] = true
					}
				}
			}
			if e.IsDir {
				reconcile = true
				continue
			}
			upserts[p] = true
		case watcher.OpGitignoreChange:
			w.scanner.InvalidateGitignore()
			reconcile = true
		case watcher.OpConfigChange:
			w.logger.Info("config_changed", slog.String("path", p),
				slog.String("hint", "restart to apply new configuration"))
		}
	}

	if reconcile {
		if err := u.reconcile(ctx, indexed, upserts, deletes); err != nil {
			return nil, err
		}
	}

	// Resolve upserts against the scanner's view of the file.
	var files []*scanner.File
	for _, p := range sortedKeys(upserts) {
		f, err := w.scanner.Stat(p)
		switch {
		case err == nil:
			files = append(files, f)
			delete(deletes, p)
		case errors.Is(err, scanner.ErrSkipped) || os.IsNotExist(err):
			deletes[p] = true
		default:
			w.logger.Warn("index_update_stat_failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}

	update := &Update{}
	for _, f := range files {
		if indexed[f.Path] {
			update.Modified = append(update.Modified, f.Path)
		} else {
			update.Added = append(update.Added, f.Path)
		}
	}
	for _, p := range sortedKeys(deletes) {
		if indexed[p] {
			update.Removed = append(update.Removed, p)
		}
	}
	if update.Empty() {
		return update, nil
	}

	docs, _, err := w.chunkFiles(ctx, files, false)
	if err != nil {
		return nil, err
	}
	vectors, err := w.embed(ctx, docs, false)
	if err != nil {
		return nil, err
	}
	if err := w.remove(ctx, append(update.Removed, pathsOf(files)...)); err != nil {
		return nil, err
	}
	if err := w.write(ctx, docs, vectors); err != nil {
		return nil, err
	}
	if _, err := w.persist(ctx, false); err != nil {
		return nil, err
	}

	w.logger.Info("index_updated",
		slog.Int("added", len(update.Added)),
		slog.Int("modified", len(update.Modified)),
		slog.Int("removed", len(update.Removed)),
		slog.Int("chunks", len(docs)))
	return update, nil
}

// reconcile compares a full scan with the catalog: new files become
// upserts and indexed files that are gone or excluded become deletes.
func (u *Updater) reconcile(ctx context.Context, indexed, upserts, deletes map[string]bool) error {
	files, err := u.w.scanner.Files(ctx)
	if err != nil {
		return fmt.Errorf("reconcile scan: %w", err)
	}
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Path] = true
		if !indexed[f.Path] {
			upserts[f.Path] = true
		}
	}
	for p := range indexed {
		if !present[p] {
			deletes[p] = true
		}
	}
	u.w.logger.Debug("index_reconciled", slog.Int("files", len(files)), slog.Int("indexed", len(indexed)))
	return nil
}
