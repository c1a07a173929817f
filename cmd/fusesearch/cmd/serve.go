package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/fusesearch/internal/async"
	"github.com/Aman-CERP/fusesearch/internal/daemon"
	"github.com/Aman-CERP/fusesearch/internal/index"
	"github.com/Aman-CERP/fusesearch/internal/mcp"
	"github.com/Aman-CERP/fusesearch/internal/telemetry"
	"github.com/Aman-CERP/fusesearch/internal/ui"
	"github.com/Aman-CERP/fusesearch/internal/watcher"
	"github.com/Aman-CERP/fusesearch/pkg/searcher"
)

// TelemetryFile is the telemetry database inside the index directory.
const TelemetryFile = "telemetry.db"

type serveOptions struct {
	transport   string
	addr        string
	noWatch     bool
	poll        bool
	noTelemetry bool
	noSocket    bool
	flushEvery  time.Duration
}

func newServeCmd(g *globals) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve the index over the Model Context Protocol",
		Long: `Start an MCP server exposing the search_code and search_stats tools.

With the stdio transport stdout carries only JSON-RPC; logs go to
~/.fusesearch/logs/. A missing index is built in the background while
the server already answers, and kept current by a file watcher. Query
statistics are flushed to .fusesearch/telemetry.db.

CLI commands in the same project reach the server through
.fusesearch/serve.sock, since the open index cannot be opened twice.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := projectRoot(args)
			if err != nil {
				return err
			}
			return runServe(ctx, g, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "Transport: stdio, http")
	cmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:8765", "Listen address for the http transport")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not watch files for changes")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Watch by polling instead of filesystem events")
	cmd.Flags().BoolVar(&opts.noTelemetry, "no-telemetry", false, "Do not persist query statistics")
	cmd.Flags().BoolVar(&opts.noSocket, "no-socket", false, "Do not answer CLI queries on the project socket")
	cmd.Flags().DurationVar(&opts.flushEvery, "telemetry-interval", time.Minute, "How often statistics are flushed")

	return cmd
}

func runServe(ctx context.Context, g *globals, root string, opts serveOptions) error {
	if opts.transport != "stdio" && opts.transport != "http" {
		return fmt.Errorf("invalid transport %q: must be stdio or http", opts.transport)
	}
	logger := slog.Default()

	eng, err := g.openEngine(ctx, root)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mcpOpts := []mcp.Option{
		mcp.WithTelemetry(eng.Telemetry()),
		mcp.WithRoot(eng.Root()),
		mcp.WithLogger(logger),
	}
	socketOpts := []daemon.ServerOption{
		daemon.WithRoot(eng.Root()),
		daemon.WithTelemetry(eng.Telemetry()),
		daemon.WithLogger(logger),
	}
	builder := backgroundBuild(ctx, eng, logger)
	if builder != nil {
		defer builder.Stop()
		mcpOpts = append(mcpOpts, mcp.WithBuildProgress(builder.Progress()))
		socketOpts = append(socketOpts, daemon.WithProgress(builder.Progress()))
	}

	srv, err := mcp.NewServer(eng, mcpOpts...)
	if err != nil {
		return err
	}

	grp, ctx := errgroup.WithContext(ctx)

	if !opts.noWatch {
		grp.Go(func() error {
			// Changes made during a build are picked up by the build itself.
			if builder != nil {
				select {
				case <-builder.Done():
				case <-ctx.Done():
					return nil
				}
			}
			if err := eng.Watch(ctx, watcher.Options{ForcePolling: opts.poll}); err != nil {
				logger.Warn("watcher_stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if !opts.noTelemetry {
		st, err := telemetry.OpenStore(filepath.Join(eng.Stores().Layout.DataDir, TelemetryFile))
		if err != nil {
			logger.Warn("telemetry_store_unavailable", slog.String("error", err.Error()))
		} else {
			defer st.Close()
			grp.Go(func() error {
				st.Run(ctx, eng.Telemetry(), opts.flushEvery, logger)
				return nil
			})
		}
	}

	if !opts.noSocket {
		sock, err := daemon.NewServer(daemon.ConfigFor(eng.Stores().Layout.DataDir), eng, socketOpts...)
		if err != nil {
			return err
		}
		grp.Go(func() error {
			if err := sock.ListenAndServe(ctx); err != nil {
				logger.Warn("socket_unavailable", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	grp.Go(func() error {
		// The client closing stdin ends the session and everything else.
		defer cancel()
		return srv.Serve(ctx, opts.transport, opts.addr)
	})

	logger.Info("serve_started",
		slog.String("root", eng.Root()),
		slog.String("transport", opts.transport),
		slog.Bool("watch", !opts.noWatch),
		slog.Bool("building", builder != nil))
	err = grp.Wait()
	logger.Info("serve_stopped")
	return err
}

// backgroundBuild starts indexing when the project has no index or its
// last build was interrupted, and returns nil otherwise. Queries are
// answered from whatever has been written so far.
func backgroundBuild(ctx context.Context, eng *searcher.Engine, logger *slog.Logger) *async.Builder {
	layout := eng.Stores().Layout
	_, err := index.ReadMeta(layout.Meta)
	interrupted := async.Interrupted(layout.DataDir)
	if err == nil && !interrupted {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		logger.Warn("index_meta_unreadable", slog.String("error", err.Error()))
	}
	logger.Info("index_building_in_background",
		slog.String("root", eng.Root()),
		slog.Bool("interrupted", interrupted))

	b := async.NewBuilder(layout.DataDir, func(ctx context.Context, r ui.Renderer) error {
		_, err := eng.Build(ctx, r)
		return err
	}, async.WithLogger(logger))
	b.Start(ctx)
	return b
}
