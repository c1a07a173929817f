// Package chunk splits files into fixed-size line chunks. The same scheme is
// used at index time and when expanding search hits into context windows,
// so a chunk index always denotes the same line range of a given file.
package chunk

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultLines is the default number of lines per chunk.
const DefaultLines = 40

// Chunk is a retrievable unit of a file.
type Chunk struct {
	ID        string // FilePath#Index
	FilePath  string // Relative to project root, slash separated
	Index     int    // 0-indexed position within the file
	StartLine int    // 1-indexed
	EndLine   int    // Inclusive
	Content   string
}

// LineCount returns the number of lines the chunk spans.
func (c *Chunk) LineCount() int {
	if c.EndLine < c.StartLine {
		return 0
	}
	return c.EndLine - c.StartLine + 1
}

// Lines splits content into lines without their terminators. A trailing
// newline does not produce an empty final line; CRLF endings are accepted.
func Lines(content string) []string {
	if content == "" {
		return []string{}
	}
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Split cuts content into chunks of linesPerChunk lines.
// An empty file yields no chunks.
func Split(path, content string, linesPerChunk int) []*Chunk {
	return FromLines(path, Lines(content), linesPerChunk)
}

// FromLines builds chunks from already split lines.
func FromLines(path string, lines []string, linesPerChunk int) []*Chunk {
	if linesPerChunk <= 0 {
		linesPerChunk = DefaultLines
	}

	chunks := make([]*Chunk, 0, Count(len(lines), linesPerChunk))
	for start := 0; start < len(lines); start += linesPerChunk {
		end := start + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		idx := start / linesPerChunk
		chunks = append(chunks, &Chunk{
			ID:        ID(path, idx),
			FilePath:  path,
			Index:     idx,
			StartLine: start + 1,
			EndLine:   end,
			Content:   strings.Join(lines[start:end], "\n"),
		})
	}
	return chunks
}

// Count returns how many chunks a file of lineCount lines has.
func Count(lineCount, linesPerChunk int) int {
	if lineCount <= 0 || linesPerChunk <= 0 {
		return 0
	}
	return (lineCount + linesPerChunk - 1) / linesPerChunk
}

// IndexForLine returns the chunk index containing 1-indexed line.
func IndexForLine(line, linesPerChunk int) int {
	if line <= 1 || linesPerChunk <= 0 {
		return 0
	}
	return (line - 1) / linesPerChunk
}

// Bounds returns the 1-indexed inclusive line range of chunk idx in a file
// of lineCount lines. ok is false when idx is out of range.
func Bounds(idx, lineCount, linesPerChunk int) (start, end int, ok bool) {
	if idx < 0 || idx >= Count(lineCount, linesPerChunk) {
		return 0, 0, false
	}
	start = idx*linesPerChunk + 1
	end = start + linesPerChunk - 1
	if end > lineCount {
		end = lineCount
	}
	return start, end, true
}

// ID returns the document id of chunk idx of path.
func ID(path string, idx int) string {
	return path + "#" + strconv.Itoa(idx)
}

// ParseID splits a document id produced by ID.
func ParseID(id string) (path string, idx int, err error) {
	i := strings.LastIndexByte(id, '#')
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid chunk id %q", id)
	}
	idx, err = strconv.Atoi(id[i+1:])
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("invalid chunk index in %q", id)
	}
	return id[:i], idx, nil
}
