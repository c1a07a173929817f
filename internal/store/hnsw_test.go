package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHNSW(t *testing.T) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	return s
}

func axisVectors() ([]string, [][]float32) {
	return []string{"x", "y", "z"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
}

func TestHNSWStore_AddAndSearch(t *testing.T) {
	// Given: three orthogonal vectors
	ctx := context.Background()
	s := newTestHNSW(t)
	ids, vecs := axisVectors()
	require.NoError(t, s.Add(ctx, ids, vecs))

	// When: searching near the first, with an unnormalized query
	results, err := s.Search(ctx, []float32{3, 0.3, 0, 0}, 2)

	// Then: the nearest comes first with a high similarity in [0,1]
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "x", results[0].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, float32(0))
		assert.LessOrEqual(t, r.Score, float32(1))
	}
}

func TestHNSWStore_IdenticalVectorScoresOne(t *testing.T) {
	ctx := context.Background()
	s := newTestHNSW(t)
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{0.5, 0.5, 0.5, 0.5}}))

	results, err := s.Search(ctx, []float32{0.5, 0.5, 0.5, 0.5}, 1)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestHNSWStore_DeleteHidesVector(t *testing.T) {
	// Given: three vectors
	ctx := context.Background()
	s := newTestHNSW(t)
	ids, vecs := axisVectors()
	require.NoError(t, s.Add(ctx, ids, vecs))

	// When: deleting the one nearest the query
	require.NoError(t, s.Delete(ctx, []string{"x", "unknown"}))
	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 3)

	// Then: it is never returned, the rest still are
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "x", r.ID)
	}
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, 1, s.Orphans())
	assert.False(t, s.Contains("x"))
}

func TestHNSWStore_ReplaceMovesID(t *testing.T) {
	ctx := context.Background()
	s := newTestHNSW(t)
	ids, vecs := axisVectors()
	require.NoError(t, s.Add(ctx, ids, vecs))

	require.NoError(t, s.Add(ctx, []string{"x"}, [][]float32{{0, 0, 0, 1}}))

	results, err := s.Search(ctx, []float32{0, 0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, 1, s.Orphans())
}

func TestHNSWStore_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestHNSW(t)

	err := s.Add(ctx, []string{"a"}, [][]float32{{1, 2}})
	var dim ErrDimensionMismatch
	require.ErrorAs(t, err, &dim)
	assert.Equal(t, 4, dim.Expected)
	assert.Equal(t, 2, dim.Got)

	_, err = s.Search(ctx, []float32{1}, 1)
	assert.ErrorAs(t, err, &dim)

	assert.Error(t, s.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0, 0, 0}}))
	assert.NoError(t, s.Add(ctx, nil, nil))

	_, err = NewHNSWStore(VectorStoreConfig{})
	assert.Error(t, err)
}

func TestHNSWStore_EmptySearch(t *testing.T) {
	s := newTestHNSW(t)

	results, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 5)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_SaveLoad(t *testing.T) {
	// Given: a saved store with one deleted vector
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "vectors.hnsw")
	s := newTestHNSW(t)
	ids, vecs := axisVectors()
	require.NoError(t, s.Add(ctx, ids, vecs))
	require.NoError(t, s.Delete(ctx, []string{"z"}))
	require.NoError(t, s.Save(path))

	// When: loading into a fresh store
	loaded := newTestHNSW(t)
	require.NoError(t, loaded.Load(path))

	// Then: live ids and search behave as before
	assert.Equal(t, 2, loaded.Count())
	assert.True(t, loaded.Contains("y"))
	assert.False(t, loaded.Contains("z"))
	results, err := loaded.Search(ctx, []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "y", results[0].ID)

	dims, err := ReadHNSWDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 4, dims)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestHNSWStore_LoadDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	s := newTestHNSW(t)
	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, s.Save(path))

	other, err := NewHNSWStore(DefaultVectorStoreConfig(8))
	require.NoError(t, err)

	var dim ErrDimensionMismatch
	assert.ErrorAs(t, other.Load(path), &dim)
}

func TestReadHNSWDimensions_Missing(t *testing.T) {
	dims, err := ReadHNSWDimensions(filepath.Join(t.TempDir(), "none.hnsw"))

	require.NoError(t, err)
	assert.Equal(t, 0, dims)
}

func TestHNSWStore_Closed(t *testing.T) {
	s := newTestHNSW(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}), ErrClosed)
	assert.ErrorIs(t, s.Save(filepath.Join(t.TempDir(), "v.hnsw")), ErrClosed)
	assert.Equal(t, 0, s.Count())
	assert.False(t, s.Contains("a"))
}

func TestHNSWStore_ConcurrentAddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestHNSW(t)
	require.NoError(t, s.Add(ctx, []string{"seed"}, [][]float32{{1, 1, 1, 1}}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			_ = s.Add(ctx, []string{id}, [][]float32{{float32(i + 1), 1, 0, 0}})
		}(i)
		go func() {
			defer wg.Done()
			_, err := s.Search(ctx, []float32{1, 0, 0, 0}, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 9, s.Count())
}

func TestCosineScore(t *testing.T) {
	assert.Equal(t, float32(1), cosineScore(0))
	assert.Equal(t, float32(0.5), cosineScore(1))
	assert.Equal(t, float32(0), cosineScore(2))
	assert.Equal(t, float32(0), cosineScore(2.5))
	assert.Equal(t, float32(1), cosineScore(-0.1))
}

func TestHNSWStore_IDs(t *testing.T) {
	ctx := context.Background()
	s := newTestHNSW(t)
	ids, vecs := axisVectors()
	require.NoError(t, s.Add(ctx, ids, vecs))
	require.NoError(t, s.Delete(ctx, []string{"y"}))

	assert.Equal(t, []string{"x", "z"}, s.IDs())
}

func TestHNSWStore_ResetDropsOrphans(t *testing.T) {
	ctx := context.Background()
	s := newTestHNSW(t)
	ids, vecs := axisVectors()
	require.NoError(t, s.Add(ctx, ids, vecs))
	require.NoError(t, s.Add(ctx, []string{"x"}, [][]float32{{0, 0, 0, 1}}))
	require.Equal(t, 1, s.Orphans())

	require.NoError(t, s.Reset())

	assert.Zero(t, s.Count())
	assert.Zero(t, s.Orphans())
	require.NoError(t, s.Add(ctx, []string{"w"}, [][]float32{{1, 1, 0, 0}}))
	assert.Equal(t, []string{"w"}, s.IDs())
}
