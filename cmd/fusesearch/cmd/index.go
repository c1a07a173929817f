package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fusesearch/internal/async"
	"github.com/Aman-CERP/fusesearch/internal/index"
	"github.com/Aman-CERP/fusesearch/internal/output"
	"github.com/Aman-CERP/fusesearch/internal/ui"
)

func newIndexCmd(g *globals) *cobra.Command {
	var (
		noTUI bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for searching",
		Long: `Index a directory to enable hybrid search over its contents.

This scans files, splits them into fixed-size chunks, embeds each chunk
and writes the full-text index, the term index and the vector store.
Files that disappeared or became excluded since the last run are dropped.

Use --force to clear existing index data and rebuild from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C cancels the build between batches.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := projectRoot(args)
			if err != nil {
				return err
			}
			return runIndex(ctx, cmd, g, root, noTUI, force)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&force, "force", false, "Clear existing index and rebuild from scratch")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, g *globals, root string, noTUI, force bool) error {
	if force {
		if err := clearIndex(index.LayoutFor(root)); err != nil {
			return err
		}
	}

	eng, err := g.openEngine(ctx, root)
	if err != nil {
		return err
	}
	defer eng.Close()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(g.colorOff()),
		ui.WithProjectDir(eng.Root()),
	))
	if err := renderer.Start(ctx); err != nil {
		return err
	}

	// The build marker lets status and serve notice a killed run.
	var res *index.Result
	builder := async.NewBuilder(eng.Stores().Layout.DataDir, func(ctx context.Context, r ui.Renderer) error {
		var err error
		res, err = eng.Build(ctx, r)
		return err
	}, async.WithRenderer(renderer))
	builder.Start(ctx)
	err = builder.Wait()
	_ = renderer.Stop()
	if err != nil {
		return err
	}

	if res.Removed > 0 {
		output.New(cmd.OutOrStdout(), g.colorOff()).Warningf("Dropped %d files no longer in the project", res.Removed)
	}
	return nil
}

// clearIndex removes the index files but keeps telemetry and the lock.
func clearIndex(l index.Layout) error {
	for _, p := range []string{l.FullText, l.Terms, l.Terms + "-wal", l.Terms + "-shm", l.Vectors, l.Vectors + ".meta", l.Meta} {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
	}
	return nil
}
