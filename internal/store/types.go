// Package store holds the persistent indexes behind the search backends:
// a bleve full-text index, a SQLite FTS5 term-frequency index that also
// catalogs every chunk, and an HNSW vector store.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aman-CERP/fusesearch/internal/chunk"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Document is one indexed chunk.
type Document struct {
	ID         string // path#chunkIndex
	Path       string // relative to project root, slash separated
	ChunkIndex int
	StartLine  int
	EndLine    int
	Content    string
}

// DocumentFromChunk converts a chunk into an indexable document.
func DocumentFromChunk(c *chunk.Chunk) *Document {
	return &Document{
		ID:         c.ID,
		Path:       c.FilePath,
		ChunkIndex: c.Index,
		StartLine:  c.StartLine,
		EndLine:    c.EndLine,
		Content:    c.Content,
	}
}

// TextResult is one keyword search hit with its backend-native score.
type TextResult struct {
	Doc          *Document
	Score        float64 // higher is better, unbounded
	MatchedTerms []string
}

// TextIndex is a keyword index over chunk documents.
type TextIndex interface {
	// Index adds or replaces documents.
	Index(ctx context.Context, docs []*Document) error

	// Search returns at most limit documents matching query, best first.
	Search(ctx context.Context, query string, limit int) ([]*TextResult, error)

	// DeletePaths removes every document of the given files.
	DeletePaths(ctx context.Context, paths []string) error

	// Count returns the number of indexed documents.
	Count() int

	Close() error
}

// DocumentSource resolves chunk ids to documents.
type DocumentSource interface {
	Documents(ctx context.Context, ids []string) (map[string]*Document, error)
}

// VectorResult is one nearest-neighbor hit.
type VectorResult struct {
	ID       string
	Distance float32 // cosine distance in [0,2]
	Score    float32 // similarity in [0,1]
}

// VectorStoreConfig configures the HNSW graph.
type VectorStoreConfig struct {
	Dimensions int `json:"dimensions"`

	// M is the maximum number of neighbors per node.
	M int `json:"m"`

	// EfSearch is the candidate list size at query time.
	EfSearch int `json:"ef_search"`
}

// DefaultVectorStoreConfig returns defaults for vectors of the given size.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}

// VectorStore is a similarity index over chunk embeddings.
type VectorStore interface {
	// Add inserts vectors; an existing id is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search returns the k nearest vectors to query.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by id.
	Delete(ctx context.Context, ids []string) error

	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch reports a vector of the wrong size.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'fusesearch index' to rebuild)", e.Expected, e.Got)
}
