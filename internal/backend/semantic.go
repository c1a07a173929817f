package backend

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/fusesearch/internal/embed"
	"github.com/Aman-CERP/fusesearch/internal/search"
	"github.com/Aman-CERP/fusesearch/internal/store"
)

// Semantic embeds the query and searches the vector store. Vector ids are
// resolved to chunk documents through a DocumentSource.
type Semantic struct {
	embedder  embed.Embedder
	vectors   VectorSearcher
	docs      store.DocumentSource
	overfetch int
	minScore  float64
}

// SemanticOption configures Semantic.
type SemanticOption func(*Semantic)

// WithEmbedder sets the query embedder.
func WithEmbedder(e embed.Embedder) SemanticOption {
	return func(s *Semantic) { s.embedder = e }
}

// WithVectorStore sets the vector store.
func WithVectorStore(v VectorSearcher) SemanticOption {
	return func(s *Semantic) { s.vectors = v }
}

// WithDocuments sets the source used to resolve vector ids.
func WithDocuments(d store.DocumentSource) SemanticOption {
	return func(s *Semantic) { s.docs = d }
}

// WithSemanticOverfetch sets the candidates fetched per requested result.
func WithSemanticOverfetch(n int) SemanticOption {
	return func(s *Semantic) {
		if n > 0 {
			s.overfetch = n
		}
	}
}

// WithMinSimilarity drops neighbors scoring below min.
func WithMinSimilarity(min float64) SemanticOption {
	return func(s *Semantic) { s.minScore = min }
}

// NewSemantic requires an embedder, a vector store and a document source.
func NewSemantic(opts ...SemanticOption) (*Semantic, error) {
	s := &Semantic{overfetch: DefaultOverfetch}
	for _, opt := range opts {
		opt(s)
	}
	switch {
	case s.embedder == nil:
		return nil, ErrNilEmbedder
	case s.vectors == nil:
		return nil, ErrNilVectorStore
	case s.docs == nil:
		return nil, ErrNilDocuments
	}
	return s, nil
}

// Type implements search.Backend.
func (s *Semantic) Type() search.MatchType { return search.MatchSemantic }

// Search implements search.Backend.
func (s *Semantic) Search(ctx context.Context, q search.Query) ([]search.RawMatch, error) {
	vec, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embedding query failed: %w", err)
	}
	if isZero(vec) {
		return []search.RawMatch{}, nil
	}

	neighbors, err := s.vectors.Search(ctx, vec, fetchSize(q.Limit, s.overfetch))
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(neighbors) == 0 {
		return []search.RawMatch{}, nil
	}

	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		ids = append(ids, n.ID)
	}
	docs, err := s.docs.Documents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve vector ids: %w", err)
	}

	matches := make([]search.RawMatch, 0, len(neighbors))
	for _, n := range neighbors {
		score := float64(n.Score)
		if score < s.minScore {
			continue
		}
		doc, ok := docs[n.ID]
		if !ok {
			continue // vector outlived its chunk
		}
		matches = append(matches, fromDocument(doc, score, search.MatchSemantic))
	}
	return matches, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
