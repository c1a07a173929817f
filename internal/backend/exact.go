package backend

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/fusesearch/internal/chunk"
	"github.com/Aman-CERP/fusesearch/internal/scanner"
	"github.com/Aman-CERP/fusesearch/internal/search"
)

// FileLister enumerates the files the exact matcher scans.
type FileLister interface {
	Files(ctx context.Context) ([]*scanner.File, error)
}

// Exact scans project files for lines containing the query literally,
// ignoring case. Hits inside one chunk collapse into a single match
// spanning them. Every match scores 1.0.
type Exact struct {
	files      FileLister
	chunkLines int
	workers    int
	overfetch  int
}

// ExactOption configures Exact.
type ExactOption func(*Exact)

// WithChunkLines sets the chunk size used to group hits.
func WithChunkLines(n int) ExactOption {
	return func(e *Exact) {
		if n > 0 {
			e.chunkLines = n
		}
	}
}

// WithWorkers bounds the number of files read concurrently.
func WithWorkers(n int) ExactOption {
	return func(e *Exact) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithExactOverfetch sets the matches kept per requested result.
func WithExactOverfetch(n int) ExactOption {
	return func(e *Exact) {
		if n > 0 {
			e.overfetch = n
		}
	}
}

// NewExact returns ErrNilScanner if files is nil.
func NewExact(files FileLister, opts ...ExactOption) (*Exact, error) {
	if files == nil {
		return nil, ErrNilScanner
	}
	e := &Exact{
		files:      files,
		chunkLines: chunk.DefaultLines,
		workers:    runtime.GOMAXPROCS(0),
		overfetch:  DefaultOverfetch,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Type implements search.Backend.
func (e *Exact) Type() search.MatchType { return search.MatchExact }

// exactHit is one collapsed chunk worth of matching lines.
type exactHit struct {
	match search.RawMatch
	lines int
}

// Search implements search.Backend.
func (e *Exact) Search(ctx context.Context, q search.Query) ([]search.RawMatch, error) {
	needle := strings.ToLower(q.Text)
	if strings.TrimSpace(needle) == "" {
		return []search.RawMatch{}, nil
	}

	files, err := e.files.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	var (
		mu   sync.Mutex
		hits []exactHit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(f.AbsPath)
			if err != nil {
				return nil // deleted or unreadable since the walk
			}
			found := e.scan(f.Path, string(data), needle)
			if len(found) == 0 {
				return nil
			}
			mu.Lock()
			hits = append(hits, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.lines != b.lines {
			return a.lines > b.lines
		}
		if a.match.Path != b.match.Path {
			return a.match.Path < b.match.Path
		}
		return a.match.Location.StartLine < b.match.Location.StartLine
	})
	if max := fetchSize(q.Limit, e.overfetch); len(hits) > max {
		hits = hits[:max]
	}

	matches := make([]search.RawMatch, len(hits))
	for i, h := range hits {
		matches[i] = h.match
	}
	return matches, nil
}

// scan finds the lines of content containing needle and groups them by chunk.
func (e *Exact) scan(path, content, needle string) []exactHit {
	if !strings.Contains(strings.ToLower(content), needle) {
		return nil
	}
	lines := chunk.Lines(content)

	var (
		out         []exactHit
		first, last int
		count       int
		current     = -1
	)
	flush := func() {
		if count == 0 {
			return
		}
		out = append(out, exactHit{
			match: search.RawMatch{
				Path:     path,
				Location: search.LineLocation(first, last),
				Content:  strings.Join(lines[first-1:last], "\n"),
				Score:    1.0,
				Type:     search.MatchExact,
			},
			lines: count,
		})
		count = 0
	}

	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		n := i + 1
		idx := chunk.IndexForLine(n, e.chunkLines)
		if idx != current {
			flush()
			current, first = idx, n
		}
		last = n
		count++
	}
	flush()
	return out
}
