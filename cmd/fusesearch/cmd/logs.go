package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fusesearch/internal/logging"
)

type logsOptions struct {
	follow bool
	lines  int
	level  string
	filter string
	file   string
}

func newLogsCmd(g *globals) *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View fusesearch logs",
		Long: `Show the JSON log written by fusesearch commands and the server
(~/.fusesearch/logs/fusesearch.log), one readable line per entry.

Use -f to follow new entries as they are written.`,
		Example: `  fusesearch logs                  # last 50 entries
  fusesearch logs -f               # follow
  fusesearch logs --level warn     # warnings and errors only
  fusesearch logs --filter search  # lines matching a regex`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, g, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only lines matching this regex")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file (default: ~/.fusesearch/logs/fusesearch.log)")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, g *globals, opts logsOptions) error {
	path := opts.file
	if path == "" {
		path = logging.DefaultLogPath()
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no log file at %s\nRun a command with --debug, or start 'fusesearch serve'", path)
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		var err error
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: g.colorOff(),
	}, out)

	if !opts.follow {
		entries, err := viewer.Tail(path, opts.lines)
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Following %s (Ctrl+C to stop)\n", path)
	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Follow(ctx, path, entries) }()

	for {
		select {
		case e := <-entries:
			fmt.Fprintln(out, viewer.Format(e))
		case err := <-errCh:
			return err
		}
	}
}
