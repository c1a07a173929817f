// Package search orchestrates hybrid code search: a query is dispatched
// concurrently to every enabled retrieval backend (exact, full-text,
// term-frequency, semantic), each guarded by a timeout and a circuit
// breaker; the surviving matches are expanded into chunk context windows,
// fused into one deduplicated ranked list and cached.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MatchType identifies the backend a match came from. The declaration order
// is the default tie-break priority: exact > full-text > term-frequency > semantic.
type MatchType int

const (
	// MatchExact is a literal text match from the line scanner.
	MatchExact MatchType = iota
	// MatchFullText is an inverted-index full-text match.
	MatchFullText
	// MatchTermFrequency is a BM25-ranked term-frequency match.
	MatchTermFrequency
	// MatchSemantic is a dense-vector similarity match.
	MatchSemantic
)

// AllMatchTypes lists every match type in default priority order.
var AllMatchTypes = []MatchType{MatchExact, MatchFullText, MatchTermFrequency, MatchSemantic}

// String returns the backend identifier used in config and on the wire.
func (m MatchType) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchFullText:
		return "fulltext"
	case MatchTermFrequency:
		return "termfreq"
	case MatchSemantic:
		return "semantic"
	default:
		return "unknown"
	}
}

// ParseMatchType parses a backend identifier.
func ParseMatchType(s string) (MatchType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return MatchExact, nil
	case "fulltext", "full-text", "bleve":
		return MatchFullText, nil
	case "termfreq", "term-frequency", "bm25":
		return MatchTermFrequency, nil
	case "semantic", "vector":
		return MatchSemantic, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m MatchType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MatchType) UnmarshalText(text []byte) error {
	parsed, err := ParseMatchType(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Location addresses a match within a file. Line-granular backends set the
// line range; chunk-granular backends set ChunkIndex and usually the lines
// too. Unknown fields are zero (lines) or -1 (ChunkIndex).
type Location struct {
	ChunkIndex int `json:"chunk_index"`
	StartLine  int `json:"start_line"` // 1-indexed, 0 if unknown
	EndLine    int `json:"end_line"`   // inclusive
}

// LineLocation returns a line-granular location with no chunk index.
func LineLocation(start, end int) Location {
	return Location{ChunkIndex: -1, StartLine: start, EndLine: end}
}

// ChunkLocation returns a chunk-granular location. start and end may be zero
// when the backend does not know the chunk's lines.
func ChunkLocation(idx, start, end int) Location {
	return Location{ChunkIndex: idx, StartLine: start, EndLine: end}
}

// HasLines reports whether the line range is known.
func (l Location) HasLines() bool {
	return l.StartLine > 0 && l.EndLine >= l.StartLine
}

// LineCount returns the number of lines spanned, or 0 when unknown.
func (l Location) LineCount() int {
	if !l.HasLines() {
		return 0
	}
	return l.EndLine - l.StartLine + 1
}

// Overlaps reports whether l and o refer to the same place in a file:
// the same chunk, or intersecting line ranges.
func (l Location) Overlaps(o Location) bool {
	if l.ChunkIndex >= 0 && l.ChunkIndex == o.ChunkIndex {
		return true
	}
	if l.HasLines() && o.HasLines() {
		return l.StartLine <= o.EndLine && o.StartLine <= l.EndLine
	}
	return false
}

// RawMatch is one hit produced by a backend.
type RawMatch struct {
	Path     string
	Location Location
	Content  string    // matched snippet
	Score    float64   // backend-native relevance, normalized to [0,1] by adapters
	Type     MatchType // origin backend

	// Window is set once the match has been expanded against the source file.
	Window *ChunkWindow
}

// ChunkWindow is the previous/current/next chunk context around a match.
// A missing neighbor at a file boundary is the empty string.
type ChunkWindow struct {
	Path      string `json:"path"`
	Previous  string `json:"previous"`
	Current   string `json:"current"`
	Next      string `json:"next"`
	StartLine int    `json:"start_line"` // of Current, recomputed at read time
	EndLine   int    `json:"end_line"`
}

// FusedResult is one entry of the final ranked list. No two results of a
// search share the same (Path, overlapping Location).
type FusedResult struct {
	Path       string       `json:"path"`
	Location   Location     `json:"location"`
	Content    string       `json:"content"`
	Window     *ChunkWindow `json:"window,omitempty"`
	Score      float64      `json:"score"`
	MatchTypes []MatchType  `json:"match_types"`
	Rank       int          `json:"rank"` // 1-indexed
}

// Backend is one retrieval strategy. Implementations must honor ctx
// cancellation and return scores normalized to [0,1].
type Backend interface {
	// Type identifies the backend.
	Type() MatchType

	// Search returns matches for q. An empty result is a success.
	Search(ctx context.Context, q Query) ([]RawMatch, error)
}

// Query is a normalized, validated search request. It is immutable once
// built by the orchestrator.
type Query struct {
	ID       string
	Text     string
	Limit    int
	Backends []MatchType // active backends in priority order

	// Timeout overrides every backend's configured timeout when non-zero.
	Timeout time.Duration
	// Timeouts overrides individual backends and wins over Timeout.
	Timeouts map[MatchType]time.Duration
}

// TimeoutFor returns the effective timeout of backend t.
func (q Query) TimeoutFor(t MatchType, configured time.Duration) time.Duration {
	if d, ok := q.Timeouts[t]; ok && d > 0 {
		return d
	}
	if q.Timeout > 0 {
		return q.Timeout
	}
	return configured
}

// Allows reports whether t is in the query's backend set.
// An empty set allows every backend.
func (q Query) Allows(t MatchType) bool {
	if len(q.Backends) == 0 {
		return true
	}
	for _, b := range q.Backends {
		if b == t {
			return true
		}
	}
	return false
}

// SearchOptions configures a single Orchestrator.Search call.
type SearchOptions struct {
	// Limit is the maximum number of results (0 means the configured default).
	Limit int

	// Backends restricts the search to these backends. Empty means all enabled.
	Backends []MatchType

	// Timeout overrides all backend timeouts for this call.
	Timeout time.Duration

	// Timeouts overrides individual backend timeouts for this call.
	Timeouts map[MatchType]time.Duration

	// NoCache bypasses cache lookup and population.
	NoCache bool
}
