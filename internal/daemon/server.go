package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/fusesearch/internal/async"
	ferrors "github.com/Aman-CERP/fusesearch/internal/errors"
	"github.com/Aman-CERP/fusesearch/internal/search"
	"github.com/Aman-CERP/fusesearch/internal/telemetry"
)

// ErrAlreadyRunning is returned when another process serves the socket.
var ErrAlreadyRunning = errors.New("another server is listening on the socket")

// Handler runs the searches. *searcher.Engine satisfies it.
type Handler interface {
	Search(ctx context.Context, rawQuery string, opts search.SearchOptions) ([]search.FusedResult, error)
	BreakerStates() []search.BreakerStatus
	CacheStats() search.CacheStats
}

// Server answers requests on a Unix socket.
type Server struct {
	cfg      Config
	handler  Handler
	root     string
	stats    *telemetry.Collector
	progress *async.Progress
	logger   *slog.Logger
	pid      *PIDFile
	started  time.Time

	mu       sync.Mutex
	listener net.Listener
	shutdown bool
	wg       sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRoot names the project in status replies.
func WithRoot(root string) ServerOption {
	return func(s *Server) { s.root = root }
}

// WithTelemetry reports the collector in status and search replies.
func WithTelemetry(c *telemetry.Collector) ServerOption {
	return func(s *Server) { s.stats = c }
}

// WithProgress reports a background build in status replies.
func WithProgress(p *async.Progress) ServerOption {
	return func(s *Server) { s.progress = p }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server for handler.
func NewServer(cfg Config, handler Handler, opts ...ServerOption) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("search handler is required")
	}
	s := &Server{
		cfg:     cfg,
		handler: handler,
		logger:  slog.Default(),
		pid:     NewPIDFile(cfg.PIDPath),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListenAndServe serves until ctx is cancelled. A stale socket left by
// a dead server is replaced; a live one yields ErrAlreadyRunning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.cfg.EnsureDir(); err != nil {
		return err
	}
	if NewClient(s.cfg).IsRunning() {
		return ErrAlreadyRunning
	}
	_ = os.Remove(s.cfg.SocketPath)

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.SocketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	if err := s.pid.Write(); err != nil {
		s.logger.Warn("pid_file_write_failed", slog.String("error", err.Error()))
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.cfg.SocketPath)
		_ = s.pid.Remove()
	}()

	s.logger.Info("socket_listening", slog.String("socket", s.cfg.SocketPath))

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closed() {
				break
			}
			s.logger.Error("socket_accept_failed", slog.String("error", err.Error()))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return nil
}

func (s *Server) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// handleConnection answers the single request of conn.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		s.logger.Warn("socket_deadline_failed", slog.String("error", err.Error()))
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	enc := json.NewEncoder(conn)
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = enc.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}
	if err := enc.Encode(s.handleRequest(ctx, req)); err != nil {
		s.logger.Debug("socket_reply_failed", slog.String("error", err.Error()))
	}
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	case MethodStatus:
		return NewSuccessResponse(req.ID, s.Status())
	case MethodSearch:
		return s.handleSearch(ctx, req)
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleSearch(ctx context.Context, req Request) Response {
	var params SearchParams
	if len(req.Params) == 0 {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "params are required")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params")
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	results, err := s.handler.Search(ctx, params.Query, params.Options())
	if err != nil {
		resp := NewErrorResponse(req.ID, ErrCodeSearchFailed, err.Error())
		var fe *ferrors.FuseError
		if errors.As(err, &fe) {
			resp.Error.Message = fe.Message
			resp.Error.Data = fe.Code
		}
		return resp
	}

	out := SearchResult{Results: results}
	if params.Stats && s.stats != nil {
		snap := s.stats.Snapshot()
		out.Stats = &snap
	}
	return NewSuccessResponse(req.ID, out)
}

// Status describes the server.
func (s *Server) Status() StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	st := StatusResult{
		PID:      os.Getpid(),
		Root:     s.root,
		Breakers: s.handler.BreakerStates(),
		Cache:    s.handler.CacheStats(),
	}
	if !started.IsZero() {
		st.Uptime = time.Since(started).Round(time.Second).String()
	}
	if s.stats != nil {
		st.Queries = s.stats.Snapshot().Queries
	}
	if s.progress != nil {
		snap := s.progress.Snapshot()
		st.Build = &snap
	}
	return st
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
