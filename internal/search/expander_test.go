package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Aman-CERP/fusesearch/internal/errors"
)

// tenLines is line01..line10, chunked by three lines into
// [1-3] [4-6] [7-9] [10].
func tenLines() string {
	var b strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "line%02d\n", i)
	}
	return b.String()
}

func TestExpand_MiddleChunk(t *testing.T) {
	// Given: a match on the second chunk of a ten-line file
	e := NewExpander(newMapReader(map[string]string{"a.txt": tenLines()}), 3)
	m := RawMatch{Path: "a.txt", Location: ChunkLocation(1, 4, 6), Content: "line05"}

	// When: expanding
	w, err := e.Expand(context.Background(), m)

	// Then: both neighbors are present
	require.NoError(t, err)
	assert.Equal(t, "line01\nline02\nline03", w.Previous)
	assert.Equal(t, "line04\nline05\nline06", w.Current)
	assert.Equal(t, "line07\nline08\nline09", w.Next)
	assert.Equal(t, 4, w.StartLine)
	assert.Equal(t, 6, w.EndLine)
	assert.Equal(t, "a.txt", w.Path)
}

func TestExpand_FileBoundaries(t *testing.T) {
	e := NewExpander(newMapReader(map[string]string{"a.txt": tenLines()}), 3)

	tests := []struct {
		name     string
		match    RawMatch
		previous string
		current  string
		next     string
	}{
		{
			name:     "first chunk has no previous",
			match:    RawMatch{Path: "a.txt", Location: LineLocation(2, 2), Content: "line02"},
			previous: "",
			current:  "line01\nline02\nline03",
			next:     "line04\nline05\nline06",
		},
		{
			name:     "last chunk has no next",
			match:    RawMatch{Path: "a.txt", Location: ChunkLocation(3, 10, 10), Content: "line10"},
			previous: "line07\nline08\nline09",
			current:  "line10",
			next:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := e.Expand(context.Background(), tt.match)
			require.NoError(t, err)
			assert.Equal(t, tt.previous, w.Previous)
			assert.Equal(t, tt.current, w.Current)
			assert.Equal(t, tt.next, w.Next)
		})
	}
}

func TestExpand_SingleChunkFile(t *testing.T) {
	e := NewExpander(newMapReader(map[string]string{"s.txt": "only\nthree\nlines\n"}), 40)

	w, err := e.Expand(context.Background(), RawMatch{Path: "s.txt", Location: LineLocation(2, 2)})

	require.NoError(t, err)
	assert.Empty(t, w.Previous)
	assert.Empty(t, w.Next)
	assert.Equal(t, "only\nthree\nlines", w.Current)
	assert.Equal(t, 1, w.StartLine)
	assert.Equal(t, 3, w.EndLine)
}

func TestExpand_EmptyFile(t *testing.T) {
	e := NewExpander(newMapReader(map[string]string{"empty.txt": ""}), 3)

	w, err := e.Expand(context.Background(), RawMatch{Path: "empty.txt", Location: LineLocation(1, 1)})

	require.NoError(t, err)
	assert.Equal(t, ChunkWindow{Path: "empty.txt"}, w)
}

func TestExpand_Unreadable(t *testing.T) {
	// Given: a match in a file deleted since indexing
	e := NewExpander(newMapReader(map[string]string{}), 3)

	// When: expanding
	_, err := e.Expand(context.Background(), RawMatch{Path: "gone.txt", Location: LineLocation(1, 1)})

	// Then: the failure is SourceUnavailable and keeps the OS cause
	require.ErrorIs(t, err, ferrors.ErrSourceUnavailable)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExpandAll_StaleLineNumbersRelocate(t *testing.T) {
	// Given: the index says line 2, but that text now lives on line 8
	e := NewExpander(newMapReader(map[string]string{"a.txt": tenLines()}), 3)
	m := RawMatch{Path: "a.txt", Location: LineLocation(2, 2), Content: "line08"}

	// When: expanding
	out, errs := e.ExpandAll(context.Background(), []RawMatch{m})

	// Then: the window follows the content and the bounds are recomputed
	require.Empty(t, errs)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Location.ChunkIndex)
	assert.Equal(t, 7, out[0].Location.StartLine)
	assert.Equal(t, 9, out[0].Location.EndLine)
	assert.Equal(t, "line07\nline08\nline09", out[0].Window.Current)
}

func TestExpandAll_OutOfRangeLocationDegrades(t *testing.T) {
	// Given: the file shrank below the indexed location and the content is gone
	e := NewExpander(newMapReader(map[string]string{"a.txt": tenLines()}), 3)
	matches := []RawMatch{
		{Path: "a.txt", Location: LineLocation(50, 52), Content: "removed function"},
		{Path: "a.txt", Location: ChunkLocation(12, 0, 0)},
	}

	// When: expanding
	out, errs := e.ExpandAll(context.Background(), matches)

	// Then: both fall back to the last chunk instead of failing
	require.Empty(t, errs)
	require.Len(t, out, 2)
	for _, m := range out {
		assert.Equal(t, 3, m.Location.ChunkIndex)
		assert.Equal(t, 10, m.Location.StartLine)
		assert.Equal(t, 10, m.Location.EndLine)
		assert.Equal(t, "line10", m.Window.Current)
	}
}

func TestExpandAll_LineMatchKeepsItsLines(t *testing.T) {
	e := NewExpander(newMapReader(map[string]string{"a.txt": tenLines()}), 3)
	m := RawMatch{Path: "a.txt", Location: LineLocation(5, 5), Content: "line05"}

	out, errs := e.ExpandAll(context.Background(), []RawMatch{m})

	require.Empty(t, errs)
	require.Len(t, out, 1)
	assert.Equal(t, ChunkLocation(1, 5, 5), out[0].Location)
	assert.Equal(t, 4, out[0].Window.StartLine)
}

func TestExpandAll_DropsUnreadableAndReadsOnce(t *testing.T) {
	// Given: two matches in a readable file and two in a missing one
	reader := newMapReader(map[string]string{"a.txt": tenLines()})
	e := NewExpander(reader, 3)
	matches := []RawMatch{
		{Path: "a.txt", Location: LineLocation(1, 1), Content: "line01"},
		{Path: "gone.txt", Location: LineLocation(1, 1)},
		{Path: "a.txt", Location: LineLocation(9, 9), Content: "line09"},
		{Path: "gone.txt", Location: LineLocation(4, 4)},
	}

	// When: expanding all
	out, errs := e.ExpandAll(context.Background(), matches)

	// Then: readable matches survive in order, the missing file is reported once,
	// and every file was read a single time
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Location.StartLine)
	assert.Equal(t, 9, out[1].Location.StartLine)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ferrors.ErrSourceUnavailable)
	assert.Equal(t, 1, reader.readCount("a.txt"))
	assert.Equal(t, 1, reader.readCount("gone.txt"))
}

func TestOSFileReader_ResolvesAgainstRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.go"), []byte("package pkg\n"), 0o644))

	r := OSFileReader{Root: root}
	data, err := r.ReadFile(context.Background(), "pkg/a.go")

	require.NoError(t, err)
	assert.Equal(t, "package pkg\n", string(data))
}

func TestOSFileReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := OSFileReader{Root: t.TempDir()}.ReadFile(ctx, "a.go")

	assert.ErrorIs(t, err, context.Canceled)
}
