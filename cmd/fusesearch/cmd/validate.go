package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fusesearch/internal/daemon"
	"github.com/Aman-CERP/fusesearch/internal/output"
	"github.com/Aman-CERP/fusesearch/internal/search"
	"github.com/Aman-CERP/fusesearch/internal/validation"
)

func newValidateCmd(g *globals) *cobra.Command {
	var (
		jsonOutput bool
		limit      int
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "validate <queries.yaml> [path]",
		Short: "Run golden queries against the index",
		Long: `Run a file of golden queries and report which found the files they
should. Tier 1 queries must pass and negative queries must not crash;
tier 2 queries are reported but never fail the run.

When a serve process runs on the project, queries go through it.`,
		Example: `  fusesearch validate testdata/queries.yaml
  fusesearch validate queries.toml ~/src/project --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(args[1:])
			if err != nil {
				return err
			}
			queries, err := validation.LoadQueries(args[0])
			if err != nil {
				return err
			}
			opts := []validation.Option{validation.WithLimit(limit), validation.WithTimeout(timeout)}
			return runValidate(cmd.Context(), cmd, g, root, queries, jsonOutput, opts)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", validation.DefaultLimit, "Results checked per query")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-query timeout")

	return cmd
}

func runValidate(ctx context.Context, cmd *cobra.Command, g *globals, root string, queries *validation.QueryConfig, jsonOutput bool, opts []validation.Option) error {
	var s validation.Searcher
	if client := serverClient(root); client != nil {
		s = socketSearcher{client: client}
	} else {
		eng, err := g.openEngine(ctx, root)
		if err != nil {
			return err
		}
		defer eng.Close()
		s = eng
	}

	res := validation.NewValidator(s, opts...).Run(ctx, queries)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printValidation(output.New(cmd.OutOrStdout(), g.colorOff()), res)
	}
	if !res.Passed() {
		return fmt.Errorf("validation failed: tier 1 %d/%d, negative %d/%d",
			res.Tier1Pass, len(res.Tier1), res.NegPass, len(res.Negative))
	}
	return nil
}

func printValidation(out *output.Writer, res *validation.Result) {
	sections := []struct {
		title   string
		results []validation.TestResult
		passed  int
	}{
		{"Tier 1", res.Tier1, res.Tier1Pass},
		{"Tier 2", res.Tier2, res.Tier2Pass},
		{"Negative", res.Negative, res.NegPass},
	}
	for _, sec := range sections {
		if len(sec.results) == 0 {
			continue
		}
		out.Infof("%s: %d/%d passed", sec.title, sec.passed, len(sec.results))
		for _, tr := range sec.results {
			label := fmt.Sprintf("%s %s (%s)", tr.Spec.ID, tr.Spec.Name, tr.Duration.Round(time.Microsecond))
			switch {
			case tr.Passed && tr.MatchedAt > 0:
				out.Successf("%s, rank %d", label, tr.MatchedAt)
			case tr.Passed:
				out.Success(label)
			case tr.Spec.Tier == 2:
				out.Warning(label)
				out.Hint(missDetail(tr))
			default:
				out.Error(label)
				out.Hint(missDetail(tr))
			}
		}
		out.Newline()
	}
}

func missDetail(tr validation.TestResult) string {
	if tr.Error != "" {
		return "error: " + tr.Error
	}
	got := "nothing"
	if len(tr.TopResults) > 0 {
		got = strings.Join(tr.TopResults, ", ")
	}
	return fmt.Sprintf("expected %s, got %s", strings.Join(tr.Spec.Expected, " or "), got)
}

// socketSearcher sends validation queries to a running server.
type socketSearcher struct {
	client *daemon.Client
}

func (s socketSearcher) Search(ctx context.Context, query string, opts search.SearchOptions) ([]search.FusedResult, error) {
	res, err := s.client.Search(ctx, daemon.SearchParams{
		Query:    query,
		Limit:    opts.Limit,
		Backends: opts.Backends,
		Timeout:  opts.Timeout,
		NoCache:  opts.NoCache,
	})
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}
