package backend

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/fusesearch/internal/search"
	"github.com/Aman-CERP/fusesearch/internal/store"
)

// KeywordOption configures FullText and TermFrequency.
type KeywordOption func(*keyword)

// WithOverfetch sets the candidates fetched per requested result.
func WithOverfetch(n int) KeywordOption {
	return func(k *keyword) {
		if n > 0 {
			k.overfetch = n
		}
	}
}

// keyword is the shared adapter over a TextSearcher.
type keyword struct {
	index     TextSearcher
	typ       search.MatchType
	normalize func([]float64) []float64
	overfetch int
}

func newKeyword(index TextSearcher, t search.MatchType, norm func([]float64) []float64, opts []KeywordOption) (*keyword, error) {
	if index == nil {
		return nil, ErrNilIndex
	}
	k := &keyword{index: index, typ: t, normalize: norm, overfetch: DefaultOverfetch}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

func (k *keyword) search(ctx context.Context, q search.Query) ([]search.RawMatch, error) {
	results, err := k.index.Search(ctx, q.Text, fetchSize(q.Limit, k.overfetch))
	if err != nil {
		return nil, fmt.Errorf("%s search failed: %w", k.typ, err)
	}

	hits := make([]*store.TextResult, 0, len(results))
	for _, r := range results {
		if r != nil && r.Doc != nil {
			hits = append(hits, r)
		}
	}
	scores := make([]float64, len(hits))
	for i, r := range hits {
		scores[i] = r.Score
	}
	scores = k.normalize(scores)

	matches := make([]search.RawMatch, len(hits))
	for i, r := range hits {
		matches[i] = fromDocument(r.Doc, scores[i], k.typ)
	}
	return matches, nil
}

// FullText searches the inverted index. Scores are relative to the best
// hit of the query.
type FullText struct{ k *keyword }

// NewFullText returns ErrNilIndex if index is nil.
func NewFullText(index TextSearcher, opts ...KeywordOption) (*FullText, error) {
	k, err := newKeyword(index, search.MatchFullText, normalizeByMax, opts)
	if err != nil {
		return nil, err
	}
	return &FullText{k: k}, nil
}

// Type implements search.Backend.
func (f *FullText) Type() search.MatchType { return search.MatchFullText }

// Search implements search.Backend.
func (f *FullText) Search(ctx context.Context, q search.Query) ([]search.RawMatch, error) {
	return f.k.search(ctx, q)
}

// TermFrequency ranks chunks by BM25. The native scores are min-max
// normalized across the returned candidates, the weakest keeping a small
// floor.
type TermFrequency struct{ k *keyword }

// NewTermFrequency returns ErrNilIndex if index is nil.
func NewTermFrequency(index TextSearcher, opts ...KeywordOption) (*TermFrequency, error) {
	k, err := newKeyword(index, search.MatchTermFrequency, normalizeMinMax, opts)
	if err != nil {
		return nil, err
	}
	return &TermFrequency{k: k}, nil
}

// Type implements search.Backend.
func (t *TermFrequency) Type() search.MatchType { return search.MatchTermFrequency }

// Search implements search.Backend.
func (t *TermFrequency) Search(ctx context.Context, q search.Query) ([]search.RawMatch, error) {
	return t.k.search(ctx, q)
}
