package mcp

import (
	"time"

	"github.com/Aman-CERP/fusesearch/internal/async"
	"github.com/Aman-CERP/fusesearch/internal/search"
	"github.com/Aman-CERP/fusesearch/internal/telemetry"
)

// SearchCodeInput is the input schema of the search_code tool.
type SearchCodeInput struct {
	Query    string   `json:"query" jsonschema:"the code search query to execute"`
	Limit    int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Backends []string `json:"backends,omitempty" jsonschema:"restrict to these backends: exact, fulltext, termfreq, semantic"`
	NoCache  bool     `json:"no_cache,omitempty" jsonschema:"bypass the result cache"`
}

// SearchCodeOutput is the output schema of the search_code tool.
type SearchCodeOutput struct {
	Query   string               `json:"query"`
	Count   int                  `json:"count"`
	Results []SearchResultOutput `json:"results" jsonschema:"ranked results, best first"`
}

// SearchResultOutput is one ranked result.
type SearchResultOutput struct {
	Rank       int      `json:"rank"`
	FilePath   string   `json:"file_path" jsonschema:"file path relative to project root"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Score      float64  `json:"score" jsonschema:"fused relevance score between 0 and 1"`
	MatchTypes []string `json:"match_types" jsonschema:"backends that found this location"`
	Content    string   `json:"content" jsonschema:"the chunk containing the match"`
	Before     string   `json:"context_before,omitempty" jsonschema:"the chunk preceding the match"`
	After      string   `json:"context_after,omitempty" jsonschema:"the chunk following the match"`
}

// SearchStatsInput is the (empty) input of the search_stats tool.
type SearchStatsInput struct{}

// SearchStatsOutput is the output of the search_stats tool.
type SearchStatsOutput struct {
	Project   *ProjectInfo      `json:"project,omitempty"`
	Backends  []BreakerOutput   `json:"backends"`
	Cache     search.CacheStats `json:"cache"`
	Telemetry *TelemetryOutput  `json:"telemetry,omitempty"`

	// Build is set when the server indexed the project in the background.
	Build *async.Snapshot `json:"build,omitempty"`
}

// TelemetryOutput summarizes the query telemetry of this server process.
type TelemetryOutput struct {
	UptimeSeconds int64              `json:"uptime_seconds"`
	Queries       int64              `json:"queries"`
	Failed        int64              `json:"failed"`
	ZeroResults   int64              `json:"zero_results"`
	CacheHitRate  float64            `json:"cache_hit_rate"`
	P50Millis     float64            `json:"p50_ms"`
	P95Millis     float64            `json:"p95_ms"`
	Backends      []BackendTelemetry `json:"backends"`
	TopTerms      []string           `json:"top_terms,omitempty"`
}

// BackendTelemetry is the outcome history of one backend.
type BackendTelemetry struct {
	Backend   string           `json:"backend"`
	Outcomes  map[string]int64 `json:"outcomes" jsonschema:"calls per outcome: success, timeout, circuit_open, error, cancelled, saturated"`
	P50Millis float64          `json:"p50_ms"`
	P95Millis float64          `json:"p95_ms"`
}

// maxTopTerms bounds the terms reported by search_stats.
const maxTopTerms = 10

// ToTelemetryOutput converts a collector snapshot taken at now.
func ToTelemetryOutput(snap telemetry.Snapshot, now time.Time) *TelemetryOutput {
	out := &TelemetryOutput{
		UptimeSeconds: int64(now.Sub(snap.Since).Seconds()),
		Queries:       snap.Queries,
		Failed:        snap.Failed,
		ZeroResults:   snap.ZeroResults,
		CacheHitRate:  snap.CacheHitRate,
		P50Millis:     millis(snap.Latency.P50),
		P95Millis:     millis(snap.Latency.P95),
	}
	for _, b := range snap.Backends {
		out.Backends = append(out.Backends, BackendTelemetry{
			Backend:   b.Backend,
			Outcomes:  b.Outcomes,
			P50Millis: millis(b.Latency.P50),
			P95Millis: millis(b.Latency.P95),
		})
	}
	for i, tc := range snap.TopTerms {
		if i == maxTopTerms {
			break
		}
		out.TopTerms = append(out.TopTerms, tc.Term)
	}
	return out
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// BreakerOutput is the circuit state of one backend.
type BreakerOutput struct {
	Backend  string `json:"backend"`
	State    string `json:"state" jsonschema:"closed, open or half-open"`
	Failures int    `json:"failures" jsonschema:"failures inside the rolling window"`
}

// ToSearchResultOutput converts a fused result.
func ToSearchResultOutput(r search.FusedResult) SearchResultOutput {
	out := SearchResultOutput{
		Rank:       r.Rank,
		FilePath:   r.Path,
		StartLine:  r.Location.StartLine,
		EndLine:    r.Location.EndLine,
		Score:      r.Score,
		MatchTypes: make([]string, len(r.MatchTypes)),
		Content:    r.Content,
	}
	for i, t := range r.MatchTypes {
		out.MatchTypes[i] = t.String()
	}
	if w := r.Window; w != nil {
		if w.Current != "" {
			out.Content = w.Current
		}
		if w.StartLine > 0 {
			out.StartLine, out.EndLine = w.StartLine, w.EndLine
		}
		out.Before, out.After = w.Previous, w.Next
	}
	return out
}
