package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/fusesearch/internal/async"
	"github.com/Aman-CERP/fusesearch/internal/search"
	"github.com/Aman-CERP/fusesearch/internal/telemetry"
	"github.com/Aman-CERP/fusesearch/pkg/version"
)

// ServerName is the implementation name announced to clients.
const ServerName = "fusesearch"

// Engine is the part of search.Orchestrator the server uses.
type Engine interface {
	Search(ctx context.Context, rawQuery string, opts search.SearchOptions) ([]search.FusedResult, error)
	BreakerStates() []search.BreakerStatus
	CacheStats() search.CacheStats
}

// Server bridges MCP clients with the search orchestrator.
type Server struct {
	mcp      *mcp.Server
	engine   Engine
	stats    *telemetry.Collector
	progress *async.Progress
	root     string
	project  *ProjectInfo
	logger   *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: "search_code",
		Description: "Hybrid code search. Runs exact, full-text, term-frequency and semantic retrieval in parallel, " +
			"fuses the rankings and returns each hit with its surrounding chunks. Restrict backends to trade recall for speed.",
	},
	{
		Name:        "search_stats",
		Description: "Backend health (circuit breaker states), result cache counters and query telemetry (latency percentiles, outcomes per backend).",
	},
}

// Option configures a Server.
type Option func(*Server)

// WithTelemetry reports the collector through search_stats and the
// stats resource.
func WithTelemetry(c *telemetry.Collector) Option {
	return func(s *Server) { s.stats = c }
}

// WithBuildProgress reports a background index build through
// search_stats.
func WithBuildProgress(p *async.Progress) Option {
	return func(s *Server) { s.progress = p }
}

// WithRoot enables file resources below root and project detection.
func WithRoot(root string) Option {
	return func(s *Server) { s.root = root }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server. engine is required.
func NewServer(engine Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	s := &Server{engine: engine, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.root != "" {
		s.project = NewProjectDetector(s.root, s.logger).Detect()
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version.Version}, nil)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool with loosely typed arguments as decoded from
// JSON. search_code returns markdown; search_stats returns
// *SearchStatsOutput.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search_code":
		input, err := searchInputFromArgs(args)
		if err != nil {
			return nil, err
		}
		out, err := s.searchCode(ctx, input)
		if err != nil {
			return nil, err
		}
		return FormatSearchResults(out), nil
	case "search_stats":
		return s.searchStats(), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func searchInputFromArgs(args map[string]any) (SearchCodeInput, error) {
	var in SearchCodeInput
	q, ok := args["query"].(string)
	if !ok {
		return in, NewInvalidParamsError("query parameter is required and must be a string")
	}
	in.Query = q
	if l, ok := args["limit"].(float64); ok {
		in.Limit = int(l)
	}
	if b, ok := args["backends"].([]any); ok {
		for _, v := range b {
			str, ok := v.(string)
			if !ok {
				return in, NewInvalidParamsError("backends must be a list of strings")
			}
			in.Backends = append(in.Backends, str)
		}
	}
	if nc, ok := args["no_cache"].(bool); ok {
		in.NoCache = nc
	}
	return in, nil
}

// searchCode runs one query. Validation of the query text itself is left
// to the orchestrator so both surfaces reject the same inputs.
func (s *Server) searchCode(ctx context.Context, in SearchCodeInput) (SearchCodeOutput, error) {
	requestID := uuid.NewString()[:8]
	start := time.Now()

	opts := search.SearchOptions{Limit: in.Limit, NoCache: in.NoCache}
	for _, name := range in.Backends {
		t, err := search.ParseMatchType(name)
		if err != nil {
			return SearchCodeOutput{}, NewInvalidParamsError(fmt.Sprintf("unknown backend %q", name))
		}
		opts.Backends = append(opts.Backends, t)
	}

	s.logger.Info("search_code_started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query),
		slog.Int("limit", in.Limit))

	results, err := s.engine.Search(ctx, in.Query, opts)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search_code_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return SearchCodeOutput{}, MapError(err)
	}

	s.logger.Info("search_code_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	out := SearchCodeOutput{
		Query:   strings.TrimSpace(in.Query),
		Count:   len(results),
		Results: make([]SearchResultOutput, 0, len(results)),
	}
	for _, r := range results {
		out.Results = append(out.Results, ToSearchResultOutput(r))
	}
	return out, nil
}

func (s *Server) searchStats() *SearchStatsOutput {
	out := &SearchStatsOutput{
		Project: s.project,
		Cache:   s.engine.CacheStats(),
	}
	for _, b := range s.engine.BreakerStates() {
		out.Backends = append(out.Backends, BreakerOutput{
			Backend:  b.Backend.String(),
			State:    b.State,
			Failures: b.Failures,
		})
	}
	if s.stats != nil {
		out.Telemetry = ToTelemetryOutput(s.stats.Snapshot(), time.Now())
	}
	if s.progress != nil {
		snap := s.progress.Snapshot()
		out.Build = &snap
	}
	return out
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchCodeHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpSearchStatsHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

// mcpSearchCodeHandler returns markdown for display alongside the
// structured output.
func (s *Server) mcpSearchCodeHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchCodeInput) (
	*mcp.CallToolResult,
	SearchCodeOutput,
	error,
) {
	out, err := s.searchCode(ctx, input)
	if err != nil {
		return nil, SearchCodeOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(out)}},
	}, out, nil
}

func (s *Server) mcpSearchStatsHandler(_ context.Context, _ *mcp.CallToolRequest, _ SearchStatsInput) (
	*mcp.CallToolResult,
	SearchStatsOutput,
	error,
) {
	return nil, *s.searchStats(), nil
}

// Serve runs the server on transport ("stdio" or "http") until ctx is
// cancelled. addr is used by http only.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("addr", addr))

	var err error
	switch transport {
	case "stdio":
		err = s.mcp.Run(ctx, &mcp.StdioTransport{})
	case "http":
		err = s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
