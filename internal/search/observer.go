package search

import (
	"context"
	"log/slog"
	"time"
)

// Outcome is the terminal state of one backend call.
type Outcome int

const (
	// OutcomeSuccess means the backend answered in time (possibly with no matches).
	OutcomeSuccess Outcome = iota
	// OutcomeTimeout means the backend exceeded its timeout.
	OutcomeTimeout
	// OutcomeCircuitOpen means the backend was skipped by its breaker.
	OutcomeCircuitOpen
	// OutcomeError means the backend returned an error.
	OutcomeError
	// OutcomeCancelled means the caller went away before the backend finished.
	OutcomeCancelled
	// OutcomeSaturated means no worker slot freed up before the backend's
	// timeout, usually because earlier calls to it are still stuck.
	OutcomeSaturated
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCircuitOpen:
		return "circuit_open"
	case OutcomeError:
		return "error"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSaturated:
		return "saturated"
	default:
		return "unknown"
	}
}

// BackendReport describes how one backend fared for one query.
type BackendReport struct {
	Backend MatchType
	Outcome Outcome
	Latency time.Duration
	Matches int
	Err     error
}

// QuerySummary describes a finished Orchestrator.Search call.
type QuerySummary struct {
	Query    string
	Latency  time.Duration
	Results  int
	CacheHit bool
	Err      error
}

// Observer receives search lifecycle events. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	BackendFinished(queryID string, r BackendReport)
	CacheLookup(queryID string, hit bool)
	QueryFinished(queryID string, s QuerySummary)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) BackendFinished(string, BackendReport) {}
func (NopObserver) CacheLookup(string, bool)              {}
func (NopObserver) QueryFinished(string, QuerySummary)    {}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

func (m MultiObserver) BackendFinished(id string, r BackendReport) {
	for _, o := range m {
		o.BackendFinished(id, r)
	}
}

func (m MultiObserver) CacheLookup(id string, hit bool) {
	for _, o := range m {
		o.CacheLookup(id, hit)
	}
}

func (m MultiObserver) QueryFinished(id string, s QuerySummary) {
	for _, o := range m {
		o.QueryFinished(id, s)
	}
}

// LogObserver writes every event to a slog logger at debug level, and
// failed backends and queries at warn.
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l LogObserver) BackendFinished(id string, r BackendReport) {
	level := slog.LevelDebug
	if r.Outcome == OutcomeTimeout || r.Outcome == OutcomeError {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("query_id", id),
		slog.String("backend", r.Backend.String()),
		slog.String("outcome", r.Outcome.String()),
		slog.Duration("latency", r.Latency),
		slog.Int("matches", r.Matches),
	}
	if r.Err != nil {
		attrs = append(attrs, slog.String("error", r.Err.Error()))
	}
	l.logger().LogAttrs(context.Background(), level, "backend_finished", attrs...)
}

func (l LogObserver) CacheLookup(id string, hit bool) {
	msg := "cache_miss"
	if hit {
		msg = "cache_hit"
	}
	l.logger().Debug(msg, slog.String("query_id", id))
}

func (l LogObserver) QueryFinished(id string, s QuerySummary) {
	attrs := []slog.Attr{
		slog.String("query_id", id),
		slog.String("query", s.Query),
		slog.Duration("latency", s.Latency),
		slog.Int("results", s.Results),
		slog.Bool("cache_hit", s.CacheHit),
	}
	level := slog.LevelDebug
	if s.Err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", s.Err.Error()))
	}
	l.logger().LogAttrs(context.Background(), level, "search_finished", attrs...)
}
