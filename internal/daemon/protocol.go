package daemon

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/fusesearch/internal/async"
	"github.com/Aman-CERP/fusesearch/internal/search"
	"github.com/Aman-CERP/fusesearch/internal/telemetry"
)

// JSON-RPC 2.0 method names. One request is sent per connection.
const (
	MethodSearch = "search"
	MethodStatus = "status"
	MethodPing   = "ping"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrCodeSearchFailed reports a failed search. Error.Data carries the
// fusesearch error code when there is one.
const ErrCodeSearchFailed = -32002

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error is a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// NewSuccessResponse encodes result into a response.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, "failed to encode result: "+err.Error())
	}
	return Response{JSONRPC: "2.0", Result: data, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// SearchParams are the parameters of the search method.
type SearchParams struct {
	Query    string             `json:"query"`
	Limit    int                `json:"limit,omitempty"`
	Backends []search.MatchType `json:"backends,omitempty"`
	Timeout  time.Duration      `json:"timeout_ns,omitempty"`
	NoCache  bool               `json:"no_cache,omitempty"`

	// Stats asks for the server's telemetry snapshot with the results.
	Stats bool `json:"stats,omitempty"`
}

// Validate checks the required fields and clamps a negative limit to
// the server default.
func (p *SearchParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return fmt.Errorf("query is required")
	}
	if p.Limit < 0 {
		p.Limit = 0
	}
	return nil
}

// Options converts the parameters into orchestrator options.
func (p SearchParams) Options() search.SearchOptions {
	return search.SearchOptions{
		Limit:    p.Limit,
		Backends: p.Backends,
		Timeout:  p.Timeout,
		NoCache:  p.NoCache,
	}
}

// SearchResult is the result of the search method.
type SearchResult struct {
	Results []search.FusedResult `json:"results"`
	Stats   *telemetry.Snapshot  `json:"stats,omitempty"`
}

// StatusResult describes the running server.
type StatusResult struct {
	PID      int                    `json:"pid"`
	Root     string                 `json:"root"`
	Uptime   string                 `json:"uptime"`
	Breakers []search.BreakerStatus `json:"breakers"`
	Cache    search.CacheStats      `json:"cache"`
	Queries  int64                  `json:"queries"`

	// Build is set while the server indexes in the background, and
	// after such a build ended.
	Build *async.Snapshot `json:"build,omitempty"`
}

// PingResult is the result of the ping method.
type PingResult struct {
	Pong bool `json:"pong"`
}
