package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder hashes identifier parts and character trigrams into a
// fixed-size vector. It needs no model or network and is deterministic, at
// the price of only capturing lexical similarity.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

var keywordStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

// NewStaticEmbedder creates an embedder producing vectors of the given size;
// a non-positive size selects DefaultDimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed returns the unit-length feature vector of text. Blank text yields
// the zero vector.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dims)
	text = strings.TrimSpace(text)
	if text == "" {
		return vec, nil
	}

	for _, tok := range tokenize(text) {
		if !keywordStopWords[tok] {
			vec[hashIndex(tok, e.dims)] += tokenWeight
		}
	}
	for _, g := range trigrams(text) {
		vec[hashIndex(g, e.dims)] += ngramWeight
	}
	return normalize(vec), nil
}

// EmbedBatch embeds each text in turn.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (e *StaticEmbedder) Dimensions() int { return e.dims }

func (e *StaticEmbedder) ModelName() string { return fmt.Sprintf("static-%d", e.dims) }

// Close is idempotent.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// tokenize lowercases words and splits snake_case and camelCase identifiers.
// Underscores are not word characters, so snake_case splits on its own.
func tokenize(text string) []string {
	var out []string
	for _, word := range tokenPattern.FindAllString(text, -1) {
		for _, part := range splitCamel(word) {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

func splitCamel(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		prevLower := unicode.IsLower(runes[i-1])
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
			out = append(out, string(runes[start:i]))
			start = i
		}
	}
	return append(out, string(runes[start:]))
}

// trigrams returns character trigrams of the lowercased, space-collapsed text.
func trigrams(text string) []string {
	runes := []rune(strings.Join(strings.Fields(strings.ToLower(text)), " "))
	if len(runes) < ngramSize {
		return []string{string(runes)}
	}
	out := make([]string, 0, len(runes)-ngramSize+1)
	for i := 0; i+ngramSize <= len(runes); i++ {
		out = append(out, string(runes[i:i+ngramSize]))
	}
	return out
}

func hashIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}
