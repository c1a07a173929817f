// Package cmd provides the CLI commands for fusesearch.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fusesearch/internal/config"
	"github.com/Aman-CERP/fusesearch/internal/daemon"
	ferrors "github.com/Aman-CERP/fusesearch/internal/errors"
	"github.com/Aman-CERP/fusesearch/internal/index"
	"github.com/Aman-CERP/fusesearch/internal/logging"
	"github.com/Aman-CERP/fusesearch/internal/profiling"
	"github.com/Aman-CERP/fusesearch/internal/ui"
	"github.com/Aman-CERP/fusesearch/pkg/searcher"
	"github.com/Aman-CERP/fusesearch/pkg/version"
)

// openTimeout bounds how long a command waits for the index. A running
// serve process keeps the full-text index open and blocks other openers.
const openTimeout = 5 * time.Second

// globals are the persistent flags and the resources they set up.
type globals struct {
	debug      bool
	configPath string
	noColor    bool
	profile    profiling.Options

	profiler       *profiling.Session
	loggingCleanup func()
}

// NewRootCmd creates the root command for the fusesearch CLI.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "fusesearch",
		Short: "Hybrid code search for local repositories",
		Long: `fusesearch searches a codebase with four strategies at once:
exact line matching, full-text, BM25 term frequency and embeddings.
Results are fused into one ranked list with surrounding context.

Run 'fusesearch index' once, then 'fusesearch search <query>' or
'fusesearch serve' to expose the index to an MCP client.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("fusesearch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to stderr and ~/.fusesearch/logs/")
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Use this config file instead of the project's")
	cmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = g.start
	cmd.PersistentPostRunE = g.stop

	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newIndexCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newValidateCmd(g))
	cmd.AddCommand(newLogsCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// start sets up logging and profiling. Logs go to the rotating file;
// --debug also mirrors them to stderr.
func (g *globals) start(cmd *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if g.debug {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		if g.debug {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		// An unwritable log directory must not break the command.
		logger, cleanup = slog.New(slog.DiscardHandler), func() {}
	}
	g.loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Version))

	if g.profile.Enabled() {
		if g.profiler, err = profiling.Start(g.profile); err != nil {
			return err
		}
	}
	return nil
}

func (g *globals) stop(_ *cobra.Command, _ []string) error {
	var errs []error
	if g.profiler != nil {
		errs = append(errs, g.profiler.Stop())
		g.profiler = nil
	}
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
	return errors.Join(errs...)
}

func (g *globals) colorOff() bool {
	return g.noColor || ui.DetectNoColor()
}

// projectRoot returns the first argument when given, else the project
// enclosing the working directory. The result is absolute.
func projectRoot(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return filepath.Abs(args[0])
	}
	return config.FindProjectRoot(".")
}

// serverClient returns a client for the socket of a 'fusesearch serve'
// running on root, or nil when none answers.
func serverClient(root string) *daemon.Client {
	client := daemon.NewClient(daemon.ConfigFor(index.LayoutFor(root).DataDir))
	if !client.IsRunning() {
		return nil
	}
	return client
}

// loadConfig honors --config and otherwise loads the project's layers.
func (g *globals) loadConfig(root string) (*config.Config, error) {
	if g.configPath != "" {
		return config.LoadFile(g.configPath)
	}
	return config.Load(root)
}

// openEngine opens the project at root, giving up after openTimeout.
func (g *globals) openEngine(ctx context.Context, root string, opts ...searcher.Option) (*searcher.Engine, error) {
	cfg, err := g.loadConfig(root)
	if err != nil {
		return nil, err
	}
	opts = append([]searcher.Option{searcher.WithConfig(cfg), searcher.WithLogger(slog.Default())}, opts...)

	type opened struct {
		eng *searcher.Engine
		err error
	}
	ch := make(chan opened, 1)
	go func() {
		eng, err := searcher.Open(root, opts...)
		ch <- opened{eng, err}
	}()

	timer := time.NewTimer(openTimeout)
	defer timer.Stop()
	select {
	case o := <-ch:
		return o.eng, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ferrors.New(ferrors.ErrCodeIndexLocked, "index is in use by another process", nil).
			WithSuggestion("query the running 'fusesearch serve' instance, or stop it and retry")
	}
}

// Execute runs the root command and prints a failure the way users expect.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, ferrors.FormatForCLI(err))
	}
	return err
}
