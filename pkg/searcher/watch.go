package searcher

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/fusesearch/internal/watcher"
)

// Watch applies file changes below the root until ctx ends. Failed
// updates are logged and the next batch is still applied.
func (e *Engine) Watch(ctx context.Context, opts watcher.Options) error {
	if opts.Debounce <= 0 {
		opts.Debounce = e.cfg.Watcher.Debounce.Std()
	}
	if opts.Ignore == nil {
		opts.Ignore = e.scanner.Excluded
	}
	if opts.Logger == nil {
		opts.Logger = e.logger
	}

	w, err := watcher.New(e.root, opts)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	werrs := w.Errors()
	for {
		select {
		case batch, ok := <-w.Events():
			if !ok {
				return <-errc
			}
			update, err := e.Apply(ctx, batch)
			if err != nil {
				e.logger.Warn("index_update_failed",
					slog.Int("events", len(batch)),
					slog.String("error", err.Error()))
				continue
			}
			if !update.Empty() {
				e.logger.Info("index_updated",
					slog.Int("added", len(update.Added)),
					slog.Int("modified", len(update.Modified)),
					slog.Int("removed", len(update.Removed)))
			}
		case err, ok := <-werrs:
			if !ok {
				werrs = nil
				continue
			}
			e.logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}
