package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fusesearch/internal/async"
	"github.com/Aman-CERP/fusesearch/internal/config"
	"github.com/Aman-CERP/fusesearch/internal/daemon"
	"github.com/Aman-CERP/fusesearch/internal/index"
	"github.com/Aman-CERP/fusesearch/internal/telemetry"
	"github.com/Aman-CERP/fusesearch/internal/ui"
)

type statusOptions struct {
	json   bool
	check  bool
	repair bool
	days   int
}

func newStatusCmd(g *globals) *cobra.Command {
	var opts statusOptions

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show index health and status",
		Long: `Display information about the index of a project:
  - Number of indexed files and chunks
  - Last build and update time
  - Storage sizes of the three indexes
  - Enabled backends, with live breaker states when a server runs
  - Persisted query statistics

--check also compares the indexes against each other, and --repair
removes the orphaned entries it finds. Both open the index and fail
while a serve process holds it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(args)
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), cmd, g, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.check, "check", false, "Run a consistency check across the indexes")
	cmd.Flags().BoolVar(&opts.repair, "repair", false, "Remove orphaned index entries (implies --check)")
	cmd.Flags().IntVar(&opts.days, "days", 7, "Days of query statistics to show (0 hides them)")

	return cmd
}

// statusJSON is the --json document.
type statusJSON struct {
	ui.StatusInfo
	Telemetry *telemetry.Totals `json:"telemetry,omitempty"`
}

func runStatus(ctx context.Context, cmd *cobra.Command, g *globals, root string, opts statusOptions) error {
	cfg, err := g.loadConfig(root)
	if err != nil {
		return err
	}
	info, err := collectStatus(root, cfg)
	if err != nil {
		return err
	}

	if client := serverClient(root); client != nil {
		if res, err := client.Status(ctx); err == nil {
			applyServerStatus(&info, res)
		}
	}

	if opts.check || opts.repair {
		if err := checkIndex(ctx, g, root, opts.repair, &info); err != nil {
			return err
		}
	}

	var totals *telemetry.Totals
	if opts.days > 0 {
		totals, err = loadTotals(filepath.Join(index.LayoutFor(root).DataDir, TelemetryFile), opts.days, time.Now())
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(statusJSON{StatusInfo: info, Telemetry: totals})
	}
	if err := ui.NewStatusRenderer(out, g.colorOff()).Render(info); err != nil {
		return err
	}
	if totals != nil {
		renderTotals(out, *totals, opts.days)
	}
	return nil
}

func checkIndex(ctx context.Context, g *globals, root string, repair bool, info *ui.StatusInfo) error {
	eng, err := g.openEngine(ctx, root)
	if err != nil {
		return err
	}
	defer eng.Close()

	var res *index.CheckResult
	if repair {
		res, info.Repaired, err = eng.Repair(ctx)
	} else {
		res, err = eng.Check(ctx)
	}
	if err != nil {
		return err
	}
	info.Inconsistencies = len(res.Inconsistencies) - info.Repaired
	info.Orphans = eng.Stores().Counts().Orphans
	return nil
}

func collectStatus(root string, cfg *config.Config) (ui.StatusInfo, error) {
	layout := index.LayoutFor(root)
	meta, err := index.ReadMeta(layout.Meta)
	if os.IsNotExist(err) {
		return ui.StatusInfo{}, fmt.Errorf("no index found in %s\nRun 'fusesearch index' to create one", root)
	}
	if err != nil {
		return ui.StatusInfo{}, err
	}

	info := ui.StatusInfo{
		Root:         root,
		Files:        meta.Files,
		Chunks:       meta.Chunks,
		IndexedAt:    meta.IndexedAt,
		UpdatedAt:    meta.UpdatedAt,
		Model:        meta.Model,
		Dimensions:   meta.Dimensions,
		ChunkLines:   meta.ChunkLines,
		FullTextSize: pathSize(layout.FullText),
		TermsSize:    pathSize(layout.Terms) + pathSize(layout.Terms+"-wal"),
		VectorSize:   pathSize(layout.Vectors) + pathSize(layout.Vectors+".meta"),
	}

	info.Interrupted = async.Interrupted(layout.DataDir)

	lock := index.NewFileLock(layout.Lock)
	if ok, err := lock.TryLock(); err == nil {
		info.Locked = !ok
		_ = lock.Unlock()
	}

	for _, name := range cfg.BackendNames() {
		info.Backends = append(info.Backends, ui.BackendStatus{
			Name:    name,
			Enabled: cfg.Backends[name].IsEnabled(),
		})
	}
	return info, nil
}

// applyServerStatus copies the live breaker states of a running server
// into info.
func applyServerStatus(info *ui.StatusInfo, res *daemon.StatusResult) {
	info.ServerPID = res.PID
	for _, b := range res.Breakers {
		for i := range info.Backends {
			if info.Backends[i].Name == string(b.Backend) {
				info.Backends[i].Breaker = b.State
				info.Backends[i].Failures = b.Failures
			}
		}
	}
}

// pathSize is the size of a file or the total size of a directory tree.
func pathSize(p string) int64 {
	var total int64
	_ = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if info, err := d.Info(); err == nil && !d.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// loadTotals reads the last days of statistics, or nil when none were
// ever persisted.
func loadTotals(path string, days int, now time.Time) (*telemetry.Totals, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	st, err := telemetry.OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	from := now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly)
	t, err := st.Totals(from, now.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func renderTotals(out io.Writer, t telemetry.Totals, days int) {
	fmt.Fprintf(out, "\n  Queries (last %d days): %d", days, t.Queries)
	if t.Queries > 0 {
		fmt.Fprintf(out, " (%d failed, %d without results)", t.Failed, t.ZeroResults)
	}
	fmt.Fprintln(out)
	if lookups := t.CacheHits + t.CacheMisses; lookups > 0 {
		fmt.Fprintf(out, "  Cache hit rate:        %.0f%%\n", 100*float64(t.CacheHits)/float64(lookups))
	}

	backends := make([]string, 0, len(t.Outcomes))
	for b := range t.Outcomes {
		backends = append(backends, b)
	}
	sort.Strings(backends)
	for _, b := range backends {
		outcomes := make([]string, 0, len(t.Outcomes[b]))
		for o, n := range t.Outcomes[b] {
			outcomes = append(outcomes, fmt.Sprintf("%s %d", o, n))
		}
		sort.Strings(outcomes)
		fmt.Fprintf(out, "    %-10s %s\n", b, strings.Join(outcomes, ", "))
	}
}
