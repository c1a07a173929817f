// Package embed turns text into vectors for semantic search.
package embed

import (
	"context"
	"errors"
	"math"
)

// DefaultDimensions is the vector size of the static embedder.
const DefaultDimensions = 256

// ErrClosed is returned by a closed embedder.
var ErrClosed = errors.New("embedder is closed")

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for several texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size.
	Dimensions() int

	// ModelName identifies the model; vectors from different models are
	// not comparable.
	ModelName() string

	Close() error
}

// normalize scales v to unit length in place. A zero vector is left as is.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	mag := math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) / mag)
	}
	return v
}
