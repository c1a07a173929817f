package embed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many texts reach it.
type countingEmbedder struct {
	*StaticEmbedder
	texts  atomic.Int64
	closed atomic.Bool
	err    error
}

func newCounting() *countingEmbedder {
	return &countingEmbedder{StaticEmbedder: NewStaticEmbedder(16)}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.texts.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.texts.Add(int64(len(texts)))
	if c.err != nil {
		return nil, c.err
	}
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Close() error {
	c.closed.Store(true)
	return nil
}

func TestCachedEmbedder_HitSkipsInner(t *testing.T) {
	// Given: a cached embedder that has seen a text
	ctx := context.Background()
	inner := newCounting()
	c, err := NewCachedEmbedder(inner, 10)
	require.NoError(t, err)
	first, err := c.Embed(ctx, "quick fox")
	require.NoError(t, err)

	// When: embedding it again
	second, err := c.Embed(ctx, "quick fox")

	// Then: the same vector comes back without another inner call
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.texts.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c, err := NewCachedEmbedder(newCounting(), 10)
	require.NoError(t, err)

	v, _ := c.Embed(ctx, "fox")
	v[0] = 42
	again, _ := c.Embed(ctx, "fox")

	assert.NotEqual(t, float32(42), again[0])
}

func TestCachedEmbedder_BatchEmbedsOnlyMisses(t *testing.T) {
	// Given: one of three texts already cached
	ctx := context.Background()
	inner := newCounting()
	c, err := NewCachedEmbedder(inner, 10)
	require.NoError(t, err)
	cachedB, _ := c.Embed(ctx, "b")

	// When: embedding the batch
	vecs, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})

	// Then: only a and c reach the inner embedder, order is preserved
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, int64(3), inner.texts.Load())
	assert.Equal(t, cachedB, vecs[1])
	direct, _ := NewStaticEmbedder(16).Embed(ctx, "c")
	assert.Equal(t, direct, vecs[2])
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	inner := newCounting()
	inner.err = errors.New("model unavailable")
	c, err := NewCachedEmbedder(inner, 10)
	require.NoError(t, err)

	_, err = c.Embed(ctx, "fox")
	require.Error(t, err)
	_, err = c.Embed(ctx, "fox")
	require.Error(t, err)

	assert.Equal(t, int64(2), inner.texts.Load())
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedder_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	inner := newCounting()
	c, err := NewCachedEmbedder(inner, 2)
	require.NoError(t, err)

	_, _ = c.Embed(ctx, "a")
	_, _ = c.Embed(ctx, "b")
	_, _ = c.Embed(ctx, "a")
	_, _ = c.Embed(ctx, "c") // evicts b
	_, _ = c.Embed(ctx, "a")
	_, _ = c.Embed(ctx, "b")

	assert.Equal(t, int64(4), inner.texts.Load())
}

func TestCachedEmbedder_PassThrough(t *testing.T) {
	inner := newCounting()
	c, err := NewCachedEmbedder(inner, 0)
	require.NoError(t, err)

	assert.Equal(t, 16, c.Dimensions())
	assert.Equal(t, "static-16", c.ModelName())
	require.NoError(t, c.Close())
	assert.True(t, inner.closed.Load())
}

func TestCachedEmbedder_Concurrent(t *testing.T) {
	ctx := context.Background()
	c, err := NewCachedEmbedder(newCounting(), 8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := string(rune('a' + i%4))
			v, err := c.Embed(ctx, text)
			assert.NoError(t, err)
			assert.Len(t, v, 16)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 4)
}
