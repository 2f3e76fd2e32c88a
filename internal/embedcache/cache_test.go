package embedcache

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/engramhq/engram/internal/embedding"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls atomic.Int64
	dim   int
}

func (c *countingEmbedder) Name() string { return "counting" }
func (c *countingEmbedder) Dimension() int { return c.dim }
func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	v := make([]float32, c.dim)
	for i, r := range text {
		v[i%c.dim] += float32(r)
	}
	return v, nil
}
func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := c.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}
func (c *countingEmbedder) Close() error { return nil }

func newTestCache(t *testing.T, embedder *countingEmbedder) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := New(Options{
		Factory:   func() (embedding.Embedder, error) { return embedder, nil },
		Dimension: embedder.dim,
		CacheDir:  dir,
		LRUSize:   100,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_EmbedCachesResult(t *testing.T) {
	embedder := &countingEmbedder{dim: 4}
	c := newTestCache(t, embedder)

	v1, err := c.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := c.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(1), embedder.calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.LRUHits)
}

func TestCache_DiskTierSurvivesLRUClear(t *testing.T) {
	embedder := &countingEmbedder{dim: 4}
	c := newTestCache(t, embedder)

	_, err := c.Embed(context.Background(), "persisted text")
	require.NoError(t, err)
	c.Clear()

	_, err = c.Embed(context.Background(), "persisted text")
	require.NoError(t, err)

	assert.Equal(t, int64(1), embedder.calls.Load())
	assert.Equal(t, int64(1), c.Stats().DiskHits)
}

func TestCache_EmbedBatch_SmallBatchUsesCache(t *testing.T) {
	embedder := &countingEmbedder{dim: 4}
	c := newTestCache(t, embedder)

	texts := []string{"a", "b", "c"}
	_, err := c.Embed(context.Background(), "a")
	require.NoError(t, err)

	out, err := c.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, int64(3), embedder.calls.Load())
}

func TestCache_EmbedBatch_LargeBatchBypassesCache(t *testing.T) {
	embedder := &countingEmbedder{dim: 4}
	c := newTestCache(t, embedder)

	texts := make([]string, smallBatchThreshold+1)
	for i := range texts {
		texts[i] = "text"
	}

	out, err := c.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, out, len(texts))
	assert.Equal(t, int64(1), embedder.calls.Load())
}

func TestCache_EmbedNoCache_AlwaysCallsEmbedder(t *testing.T) {
	embedder := &countingEmbedder{dim: 4}
	c := newTestCache(t, embedder)

	_, err := c.EmbedNoCache(context.Background(), "same text")
	require.NoError(t, err)
	_, err = c.EmbedNoCache(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, int64(2), embedder.calls.Load())
}

func TestCache_Stats_ReportsModelLoaded(t *testing.T) {
	embedder := &countingEmbedder{dim: 4}
	c := newTestCache(t, embedder)

	assert.False(t, c.Stats().ModelLoaded)
	_, err := c.Embed(context.Background(), "warm up")
	require.NoError(t, err)
	assert.True(t, c.Stats().ModelLoaded)
}
