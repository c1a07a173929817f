package index

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/fusesearch/internal/store"
)

// Stores groups the three indexes of a project.
type Stores struct {
	Layout   Layout
	FullText *store.FullTextIndex
	Terms    *store.TermIndex
	Vectors  *store.HNSWStore
}

// Open opens, creating when missing, the indexes of the project at root.
// Vectors saved with different dimensions are discarded with a warning;
// the next build re-embeds every chunk.
func Open(root string, dimensions int) (*Stores, error) {
	layout := LayoutFor(root)
	if err := os.MkdirAll(layout.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return open(layout, dimensions)
}

// OpenMemory returns indexes that live only in memory.
func OpenMemory(dimensions int) (*Stores, error) {
	return open(Layout{}, dimensions)
}

func open(layout Layout, dimensions int) (*Stores, error) {
	s := &Stores{Layout: layout}

	var err error
	if s.FullText, err = store.NewFullTextIndex(layout.FullText); err != nil {
		return nil, fmt.Errorf("open full-text index: %w", err)
	}
	if s.Terms, err = store.NewTermIndex(layout.Terms); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open term index: %w", err)
	}
	if s.Vectors, err = store.NewHNSWStore(store.DefaultVectorStoreConfig(dimensions)); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	if layout.InMemory() {
		return s, nil
	}
	if _, statErr := os.Stat(layout.Vectors); statErr != nil {
		return s, nil
	}
	if err := s.Vectors.Load(layout.Vectors); err != nil {
		var mismatch store.ErrDimensionMismatch
		if !errors.As(err, &mismatch) {
			_ = s.Close()
			return nil, fmt.Errorf("load vectors: %w", err)
		}
		slog.Warn("vectors_discarded",
			slog.Int("saved_dimensions", mismatch.Got),
			slog.Int("dimensions", mismatch.Expected),
			slog.String("hint", "run 'fusesearch index' to re-embed"))
	}
	return s, nil
}

// SaveVectors persists the vector store. Full-text and term indexes write
// through on every batch.
func (s *Stores) SaveVectors() error {
	if s.Layout.InMemory() {
		return nil
	}
	return s.Vectors.Save(s.Layout.Vectors)
}

// Counts is a snapshot of index sizes.
type Counts struct {
	FullText int `json:"fulltext"`
	Terms    int `json:"terms"`
	Vectors  int `json:"vectors"`
	Orphans  int `json:"orphans"`
}

// Counts returns the number of documents in each index.
func (s *Stores) Counts() Counts {
	return Counts{
		FullText: s.FullText.Count(),
		Terms:    s.Terms.Count(),
		Vectors:  s.Vectors.Count(),
		Orphans:  s.Vectors.Orphans(),
	}
}

// Close closes every open index without saving.
func (s *Stores) Close() error {
	var errs []error
	if s.FullText != nil {
		errs = append(errs, s.FullText.Close())
	}
	if s.Terms != nil {
		errs = append(errs, s.Terms.Close())
	}
	if s.Vectors != nil {
		errs = append(errs, s.Vectors.Close())
	}
	return errors.Join(errs...)
}
