package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fusesearch/internal/async"
	fserrors "github.com/Aman-CERP/fusesearch/internal/errors"
	"github.com/Aman-CERP/fusesearch/internal/search"
	"github.com/Aman-CERP/fusesearch/internal/telemetry"
	"github.com/Aman-CERP/fusesearch/internal/ui"
)

// fakeEngine records the last search call.
type fakeEngine struct {
	mu       sync.Mutex
	searchFn func(ctx context.Context, q string, opts search.SearchOptions) ([]search.FusedResult, error)
	lastOpts search.SearchOptions
	lastRaw  string
	breakers []search.BreakerStatus
	cache    search.CacheStats
}

func (f *fakeEngine) Search(ctx context.Context, raw string, opts search.SearchOptions) ([]search.FusedResult, error) {
	f.mu.Lock()
	f.lastRaw, f.lastOpts = raw, opts
	f.mu.Unlock()
	if f.searchFn != nil {
		return f.searchFn(ctx, raw, opts)
	}
	return nil, nil
}

func (f *fakeEngine) BreakerStates() []search.BreakerStatus { return f.breakers }
func (f *fakeEngine) CacheStats() search.CacheStats         { return f.cache }

func sampleResults() []search.FusedResult {
	return []search.FusedResult{
		{
			Path:       "internal/search/fusion.go",
			Location:   search.LineLocation(12, 12),
			Content:    "func Fuse(",
			Score:      0.87,
			MatchTypes: []search.MatchType{search.MatchExact, search.MatchSemantic},
			Rank:       1,
			Window: &search.ChunkWindow{
				Path:      "internal/search/fusion.go",
				Previous:  "package search\n",
				Current:   "func Fuse() {}\n",
				Next:      "func rank() {}\n",
				StartLine: 11,
				EndLine:   20,
			},
		},
	}
}

func newTestServer(t *testing.T, engine Engine, opts ...Option) *Server {
	t.Helper()
	s, err := NewServer(engine, opts...)
	require.NoError(t, err)
	return s
}

func TestNewServer_RequiresEngine(t *testing.T) {
	_, err := NewServer(nil)

	assert.Error(t, err)
}

func TestServer_InfoAndTools(t *testing.T) {
	s := newTestServer(t, &fakeEngine{})

	name, ver := s.Info()
	assert.Equal(t, "fusesearch", name)
	assert.NotEmpty(t, ver)
	assert.NotNil(t, s.MCPServer())

	tools := s.ListTools()
	require.Len(t, tools, 2)
	assert.Equal(t, "search_code", tools[0].Name)
	assert.Equal(t, "search_stats", tools[1].Name)
}

func TestServer_SearchCode_PassesOptions(t *testing.T) {
	// Given: a server over a fake engine
	engine := &fakeEngine{}
	s := newTestServer(t, engine)

	// When: search_code is called with every argument
	_, err := s.CallTool(context.Background(), "search_code", map[string]any{
		"query":    "fuse results",
		"limit":    float64(5),
		"backends": []any{"exact", "semantic"},
		"no_cache": true,
	})

	// Then: the engine received them as search options
	require.NoError(t, err)
	assert.Equal(t, "fuse results", engine.lastRaw)
	assert.Equal(t, 5, engine.lastOpts.Limit)
	assert.True(t, engine.lastOpts.NoCache)
	assert.Equal(t, []search.MatchType{search.MatchExact, search.MatchSemantic}, engine.lastOpts.Backends)
}

func TestServer_SearchCode_ReturnsMarkdown(t *testing.T) {
	engine := &fakeEngine{searchFn: func(context.Context, string, search.SearchOptions) ([]search.FusedResult, error) {
		return sampleResults(), nil
	}}
	s := newTestServer(t, engine)

	got, err := s.CallTool(context.Background(), "search_code", map[string]any{"query": "fuse"})

	require.NoError(t, err)
	md, ok := got.(string)
	require.True(t, ok)
	assert.Contains(t, md, "### 1. internal/search/fusion.go:11-20 (score: 0.87)")
	assert.Contains(t, md, "func Fuse() {}")
}

func TestServer_SearchCode_InvalidArguments(t *testing.T) {
	s := newTestServer(t, &fakeEngine{})
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing query", map[string]any{}},
		{"query not a string", map[string]any{"query": 42}},
		{"unknown backend", map[string]any{"query": "x", "backends": []any{"grep"}}},
		{"backend not a string", map[string]any{"query": "x", "backends": []any{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CallTool(context.Background(), "search_code", tt.args)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
		})
	}
}

func TestServer_SearchCode_MapsEngineErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid query", fserrors.InvalidQuery("query is empty"), ErrCodeInvalidParams},
		{"all backends failed", fserrors.AllBackendsFailed(errors.New("x")), ErrCodeInternalError},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{searchFn: func(context.Context, string, search.SearchOptions) ([]search.FusedResult, error) {
				return nil, tt.err
			}}
			s := newTestServer(t, engine)

			_, err := s.CallTool(context.Background(), "search_code", map[string]any{"query": "   "})

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, tt.code, mcpErr.Code)
		})
	}
}

func TestServer_UnknownTool(t *testing.T) {
	s := newTestServer(t, &fakeEngine{})

	_, err := s.CallTool(context.Background(), "search_docs", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestServer_SearchStats(t *testing.T) {
	// Given: an engine with an open breaker and a collector that saw a query
	engine := &fakeEngine{
		breakers: []search.BreakerStatus{
			{Backend: search.MatchExact, State: "closed"},
			{Backend: search.MatchSemantic, State: "open", Failures: 3},
		},
		cache: search.CacheStats{Entries: 2, Hits: 5, Misses: 1},
	}
	collector := telemetry.NewCollector(telemetry.Config{})
	collector.QueryFinished("q", search.QuerySummary{Query: "parse config", Latency: 1500 * time.Microsecond, Results: 1})
	s := newTestServer(t, engine, WithTelemetry(collector))

	// When
	got, err := s.CallTool(context.Background(), "search_stats", nil)

	// Then
	require.NoError(t, err)
	stats, ok := got.(*SearchStatsOutput)
	require.True(t, ok)
	require.Len(t, stats.Backends, 2)
	assert.Equal(t, BreakerOutput{Backend: "semantic", State: "open", Failures: 3}, stats.Backends[1])
	assert.Equal(t, uint64(5), stats.Cache.Hits)
	require.NotNil(t, stats.Telemetry)
	assert.Equal(t, int64(1), stats.Telemetry.Queries)
	assert.InDelta(t, 1.5, stats.Telemetry.P50Millis, 1e-9)
	assert.Equal(t, []string{"config", "parse"}, stats.Telemetry.TopTerms)
	assert.Len(t, stats.Telemetry.Backends, len(search.AllMatchTypes))
	assert.Nil(t, stats.Project)
}

func TestServer_SearchStats_WithoutTelemetry(t *testing.T) {
	s := newTestServer(t, &fakeEngine{})

	got, err := s.CallTool(context.Background(), "search_stats", nil)

	require.NoError(t, err)
	assert.Nil(t, got.(*SearchStatsOutput).Telemetry)
}

func TestServer_SearchStats_ReportsBuild(t *testing.T) {
	progress := async.NewProgress()
	progress.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Current: 3, Total: 4})
	s := newTestServer(t, &fakeEngine{}, WithBuildProgress(progress))

	stats := s.searchStats()

	require.NotNil(t, stats.Build)
	assert.Equal(t, async.StatusBuilding, stats.Build.Status)
	assert.InDelta(t, 75.0, stats.Build.ProgressPct, 1e-9)

	progress.SetReady()
	assert.Equal(t, async.StatusReady, s.searchStats().Build.Status)
}

func TestServer_SDKHandlers(t *testing.T) {
	engine := &fakeEngine{searchFn: func(context.Context, string, search.SearchOptions) ([]search.FusedResult, error) {
		return sampleResults(), nil
	}}
	s := newTestServer(t, engine)

	res, out, err := s.mcpSearchCodeHandler(context.Background(), &mcp.CallToolRequest{}, SearchCodeInput{Query: "  fuse  "})

	require.NoError(t, err)
	assert.Equal(t, "fuse", out.Query)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, []string{"exact", "semantic"}, out.Results[0].MatchTypes)
	assert.Equal(t, "package search\n", out.Results[0].Before)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(text.Text, "## Search Results"))

	_, stats, err := s.mcpSearchStatsHandler(context.Background(), &mcp.CallToolRequest{}, SearchStatsInput{})
	require.NoError(t, err)
	assert.Empty(t, stats.Backends)
}

func TestServer_DetectsProjectWithRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/demo\n"), 0o644))

	s := newTestServer(t, &fakeEngine{}, WithRoot(root))

	stats := s.searchStats()
	require.NotNil(t, stats.Project)
	assert.Equal(t, "demo", stats.Project.Name)
}

func TestServer_Serve_UnknownTransport(t *testing.T) {
	s := newTestServer(t, &fakeEngine{})

	err := s.Serve(context.Background(), "carrier-pigeon", "")

	assert.ErrorContains(t, err, "unknown transport")
}

func TestServer_Serve_HTTPStopsOnCancel(t *testing.T) {
	s := newTestServer(t, &fakeEngine{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, "http", "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("http server did not stop")
	}
}

func TestToSearchResultOutput_WithoutWindow(t *testing.T) {
	r := search.FusedResult{
		Path:       "a.go",
		Location:   search.LineLocation(3, 4),
		Content:    "raw",
		Score:      0.4,
		MatchTypes: []search.MatchType{search.MatchFullText},
		Rank:       2,
	}

	out := ToSearchResultOutput(r)

	assert.Equal(t, SearchResultOutput{
		Rank: 2, FilePath: "a.go", StartLine: 3, EndLine: 4, Score: 0.4,
		MatchTypes: []string{"fulltext"}, Content: "raw",
	}, out)
}
