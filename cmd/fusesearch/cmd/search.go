package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fusesearch/internal/daemon"
	"github.com/Aman-CERP/fusesearch/internal/search"
	"github.com/Aman-CERP/fusesearch/internal/telemetry"
	"github.com/Aman-CERP/fusesearch/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	backends []string
	timeout  time.Duration
	noCache  bool
	format   string // "text", "json"
	stats    bool
	window   bool
	snippet  int
	dir      string
}

func newSearchCmd(g *globals) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search the indexed codebase with every enabled backend at once.

Each backend runs under its own timeout and circuit breaker; the
matches are expanded to their chunks and fused into one ranking.

Examples:
  fusesearch search "authentication middleware"
  fusesearch search handleRequest -n 5 --backends exact,fulltext
  fusesearch search "retry policy" --format json --stats`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, g, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringSliceVarP(&opts.backends, "backends", "b", nil, "Backends to query: exact, fulltext, termfreq, semantic")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Override every backend timeout")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Bypass the result cache")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Show per-backend outcomes and latencies")
	cmd.Flags().BoolVarP(&opts.window, "context", "C", false, "Show the chunks around each match")
	cmd.Flags().IntVar(&opts.snippet, "lines", ui.DefaultSnippetLines, "Content lines shown per result (0 hides content)")
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "Project directory (default: the project enclosing the working directory)")

	return cmd
}

// searchJSON is the --format json document.
type searchJSON struct {
	Query   string               `json:"query"`
	Count   int                  `json:"count"`
	Results []search.FusedResult `json:"results"`
	Stats   *telemetry.Snapshot  `json:"stats,omitempty"`
}

func runSearch(ctx context.Context, cmd *cobra.Command, g *globals, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q: must be text or json", opts.format)
	}
	backends, err := parseBackends(opts.backends)
	if err != nil {
		return err
	}

	root, err := projectRoot([]string{opts.dir})
	if err != nil {
		return err
	}

	// A running server holds the index; ask it instead.
	if client := serverClient(root); client != nil {
		res, err := client.Search(ctx, daemon.SearchParams{
			Query:    query,
			Limit:    opts.limit,
			Backends: backends,
			Timeout:  opts.timeout,
			NoCache:  opts.noCache,
			Stats:    opts.stats,
		})
		if err != nil {
			return err
		}
		return printResults(cmd.OutOrStdout(), g, query, res.Results, res.Stats, opts)
	}

	eng, err := g.openEngine(ctx, root)
	if err != nil {
		return err
	}
	defer eng.Close()

	results, err := eng.Search(ctx, query, search.SearchOptions{
		Limit:    opts.limit,
		Backends: backends,
		Timeout:  opts.timeout,
		NoCache:  opts.noCache,
	})
	if err != nil {
		return err
	}
	var stats *telemetry.Snapshot
	if opts.stats {
		snap := eng.Telemetry().Snapshot()
		stats = &snap
	}
	return printResults(cmd.OutOrStdout(), g, query, results, stats, opts)
}

func printResults(out io.Writer, g *globals, query string, results []search.FusedResult, stats *telemetry.Snapshot, opts searchOptions) error {
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(searchJSON{
			Query:   strings.TrimSpace(query),
			Count:   len(results),
			Results: results,
			Stats:   stats,
		})
	}

	r := ui.NewResultRenderer(out, g.colorOff(), ui.WithSnippetLines(opts.snippet), ui.WithWindow(opts.window))
	if err := r.Render(query, results); err != nil {
		return err
	}
	if stats != nil {
		return renderBackendStats(out, *stats, len(results))
	}
	return nil
}

func parseBackends(names []string) ([]search.MatchType, error) {
	var out []search.MatchType
	for _, n := range names {
		t, err := search.ParseMatchType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// renderBackendStats prints one row per backend that reported.
func renderBackendStats(out io.Writer, snap telemetry.Snapshot, results int) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "\nBACKEND\tOUTCOME\tLATENCY\tMATCHES\n")
	for _, b := range snap.Backends {
		if b.Calls() == 0 {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", b.Backend, outcomeOf(b), b.Latency.Max.Round(time.Microsecond), b.Matches)
	}
	fmt.Fprintf(tw, "total\t\t%s\t%d results\n", snap.Latency.Max.Round(time.Microsecond), results)
	return tw.Flush()
}

// outcomeOf names the single outcome of a one-query snapshot.
func outcomeOf(b telemetry.BackendSnapshot) string {
	for _, o := range []search.Outcome{search.OutcomeSuccess, search.OutcomeTimeout, search.OutcomeCircuitOpen, search.OutcomeError, search.OutcomeCancelled, search.OutcomeSaturated} {
		if b.Outcomes[o.String()] > 0 {
			return o.String()
		}
	}
	return "-"
}
