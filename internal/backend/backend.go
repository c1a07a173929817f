// Package backend adapts the retrieval collaborators to search.Backend.
//
//   - [Exact]: literal, case-insensitive line scan over the project files
//   - [FullText]: bleve index, scores divided by the best hit
//   - [TermFrequency]: SQLite FTS5 bm25, scores min-max normalized
//   - [Semantic]: query embedding against the HNSW vector store
//
// Every adapter returns scores in [0,1] and honors ctx cancellation.
package backend

import (
	"context"
	"errors"

	"github.com/Aman-CERP/fusesearch/internal/search"
	"github.com/Aman-CERP/fusesearch/internal/store"
)

// DefaultOverfetch is how many candidates per requested result the indexed
// backends ask their store for, leaving fusion room to rerank.
const DefaultOverfetch = 2

var (
	// ErrNilScanner is returned when creating Exact without a scanner.
	ErrNilScanner = errors.New("scanner is required")

	// ErrNilIndex is returned when creating a keyword backend without an index.
	ErrNilIndex = errors.New("text index is required")

	// ErrNilEmbedder is returned when creating Semantic without an embedder.
	ErrNilEmbedder = errors.New("embedder is required")

	// ErrNilVectorStore is returned when creating Semantic without a store.
	ErrNilVectorStore = errors.New("vector store is required")

	// ErrNilDocuments is returned when creating Semantic without a document source.
	ErrNilDocuments = errors.New("document source is required")
)

// TextSearcher is the query side of a keyword index.
type TextSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]*store.TextResult, error)
}

// VectorSearcher is the query side of a vector store.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error)
}

func fetchSize(limit, overfetch int) int {
	if limit <= 0 {
		limit = 1
	}
	if overfetch <= 0 {
		overfetch = 1
	}
	return limit * overfetch
}

func fromDocument(doc *store.Document, score float64, t search.MatchType) search.RawMatch {
	return search.RawMatch{
		Path:     doc.Path,
		Location: search.ChunkLocation(doc.ChunkIndex, doc.StartLine, doc.EndLine),
		Content:  doc.Content,
		Score:    clamp01(score),
		Type:     t,
	}
}

// normalizeByMax divides every score by the largest one.
func normalizeByMax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	var max float64
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	if max <= 0 {
		return out
	}
	for i, s := range scores {
		out[i] = s / max
	}
	return out
}

// minMaxFloor is the score min-max normalization gives the weakest
// candidate, so it still counts in fusion.
const minMaxFloor = 0.1

// normalizeMinMax maps scores linearly onto [minMaxFloor,1]. When every
// score is equal they all become 1.
func normalizeMinMax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	span := max - min
	for i, s := range scores {
		if span == 0 {
			out[i] = 1
			continue
		}
		out[i] = minMaxFloor + (1-minMaxFloor)*(s-min)/span
	}
	return out
}

func clamp01(f float64) float64 {
	switch {
	case f < 0 || f != f:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
