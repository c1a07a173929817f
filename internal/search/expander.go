package search

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/fusesearch/internal/chunk"
	ferrors "github.com/Aman-CERP/fusesearch/internal/errors"
)

// FileReader reads source files for context expansion.
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// OSFileReader reads files from disk, resolving relative paths against Root.
type OSFileReader struct {
	Root string
}

// ReadFile implements FileReader.
func (r OSFileReader) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := filepath.FromSlash(path)
	if !filepath.IsAbs(full) && r.Root != "" {
		full = filepath.Join(r.Root, full)
	}
	return os.ReadFile(full)
}

var _ FileReader = OSFileReader{}

// minAnchorLen is the shortest snippet line trusted to relocate a stale match.
const minAnchorLen = 4

// Expander turns matches into previous/current/next chunk windows using the
// fixed-size chunking of the index. Window boundaries come from the file as
// it is at read time, so a stale index yields shifted but real content.
type Expander struct {
	reader      FileReader
	chunkLines  int
	concurrency int
}

// NewExpander creates an Expander reading through reader.
func NewExpander(reader FileReader, chunkLines int) *Expander {
	if chunkLines <= 0 {
		chunkLines = chunk.DefaultLines
	}
	return &Expander{reader: reader, chunkLines: chunkLines, concurrency: 8}
}

// Expand reads m's file and returns its context window. A read failure is
// reported as SourceUnavailable.
func (e *Expander) Expand(ctx context.Context, m RawMatch) (ChunkWindow, error) {
	data, err := e.reader.ReadFile(ctx, m.Path)
	if err != nil {
		return ChunkWindow{}, ferrors.SourceUnavailable(m.Path, err)
	}
	w, _ := e.window(m, chunk.Lines(string(data)))
	return w, nil
}

// ExpandAll expands every match, reading each distinct file once. Matches
// whose file cannot be read are dropped and reported in the returned
// errors; the rest come back in input order with Window set and Location
// re-anchored to the file's current content.
func (e *Expander) ExpandAll(ctx context.Context, matches []RawMatch) ([]RawMatch, []error) {
	paths := make([]string, 0)
	index := make(map[string]int)
	for _, m := range matches {
		if _, ok := index[m.Path]; !ok {
			index[m.Path] = len(paths)
			paths = append(paths, m.Path)
		}
	}

	files := make([][]string, len(paths))
	readErrs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			data, err := e.reader.ReadFile(ctx, p)
			if err != nil {
				readErrs[i] = ferrors.SourceUnavailable(p, err)
				return nil
			}
			files[i] = chunk.Lines(string(data))
			return nil
		})
	}
	_ = g.Wait()

	kept := make([]RawMatch, 0, len(matches))
	var errs []error
	reported := make(map[int]bool)
	for _, m := range matches {
		i := index[m.Path]
		if readErrs[i] != nil {
			if !reported[i] {
				reported[i] = true
				errs = append(errs, readErrs[i])
			}
			continue
		}
		w, loc := e.window(m, files[i])
		m.Window = &w
		m.Location = loc
		kept = append(kept, m)
	}
	return kept, errs
}

// window builds m's window over lines and returns the location it settled on.
func (e *Expander) window(m RawMatch, lines []string) (ChunkWindow, Location) {
	w := ChunkWindow{Path: m.Path}
	n := chunk.Count(len(lines), e.chunkLines)
	if n == 0 {
		return w, m.Location
	}

	idx, relocated := e.locate(m, lines, n)
	start, end, _ := chunk.Bounds(idx, len(lines), e.chunkLines)
	w.Current = strings.Join(lines[start-1:end], "\n")
	w.StartLine, w.EndLine = start, end

	if ps, pe, ok := chunk.Bounds(idx-1, len(lines), e.chunkLines); ok {
		w.Previous = strings.Join(lines[ps-1:pe], "\n")
	}
	if ns, ne, ok := chunk.Bounds(idx+1, len(lines), e.chunkLines); ok {
		w.Next = strings.Join(lines[ns-1:ne], "\n")
	}

	// Line-granular matches keep their own lines while they still fit the
	// file; everything else takes the window's recomputed bounds.
	loc := m.Location
	lineGranular := loc.ChunkIndex < 0 && loc.HasLines()
	loc.ChunkIndex = idx
	if relocated || !lineGranular || loc.EndLine > len(lines) {
		loc.StartLine, loc.EndLine = start, end
	}
	return w, loc
}

// locate picks the chunk index for m in the current file. When the
// snippet's first substantial line is no longer inside the indexed chunk,
// the nearest occurrence in the file wins; if there is none, the indexed
// position (clamped to the file) is kept.
func (e *Expander) locate(m RawMatch, lines []string, n int) (int, bool) {
	idx := 0
	preferred := 1
	switch {
	case m.Location.HasLines():
		idx = chunk.IndexForLine(m.Location.StartLine, e.chunkLines)
		preferred = m.Location.StartLine
	case m.Location.ChunkIndex > 0:
		idx = m.Location.ChunkIndex
		preferred = idx*e.chunkLines + 1
	}
	if idx >= n {
		idx = n - 1
	}

	anchor := anchorLine(m.Content)
	if anchor == "" {
		return idx, false
	}

	start, end, _ := chunk.Bounds(idx, len(lines), e.chunkLines)
	for i := start - 1; i < end; i++ {
		if strings.Contains(lines[i], anchor) {
			return idx, false
		}
	}

	if line := nearestLine(lines, anchor, preferred); line > 0 {
		return chunk.IndexForLine(line, e.chunkLines), true
	}
	return idx, false
}

// anchorLine returns the first line of s long enough to identify it.
func anchorLine(s string) string {
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if len(l) >= minAnchorLen {
			return l
		}
	}
	return ""
}

// nearestLine returns the 1-indexed line containing anchor closest to
// preferred, or 0 if no line does.
func nearestLine(lines []string, anchor string, preferred int) int {
	best, bestDist := 0, 0
	for i, l := range lines {
		if !strings.Contains(l, anchor) {
			continue
		}
		line := i + 1
		dist := line - preferred
		if dist < 0 {
			dist = -dist
		}
		if best == 0 || dist < bestDist {
			best, bestDist = line, dist
		}
	}
	return best
}
