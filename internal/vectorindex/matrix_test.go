package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix_AddSearch(t *testing.T) {
	m := NewMatrix()
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "a", []float32{1, 0}))
	require.NoError(t, m.Add(ctx, "b", []float32{0, 1}))
	require.NoError(t, m.Add(ctx, "c", []float32{0.9, 0.1}))

	results, err := m.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
}

func TestMatrix_AddReplacesExisting(t *testing.T) {
	m := NewMatrix()
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "a", []float32{1, 0}))
	require.NoError(t, m.Add(ctx, "a", []float32{0, 1}))

	assert.Equal(t, 1, m.Size())
	results, err := m.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestMatrix_Remove(t *testing.T) {
	m := NewMatrix()
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "a", []float32{1, 0}))
	require.NoError(t, m.Add(ctx, "b", []float32{0, 1}))
	require.NoError(t, m.Remove(ctx, "a"))

	assert.Equal(t, 1, m.Size())
	results, err := m.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestMatrix_RemoveMissingIsNoop(t *testing.T) {
	m := NewMatrix()
	require.NoError(t, m.Remove(context.Background(), "missing"))
	assert.Equal(t, 0, m.Size())
}

type fakeBackfillSource struct {
	embeddings map[string][]float32
}

func (f fakeBackfillSource) AllEmbeddings(context.Context) (map[string][]float32, error) {
	return f.embeddings, nil
}

func TestMatrix_BackfillSkipsExisting(t *testing.T) {
	m := NewMatrix()
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "a", []float32{1, 0}))

	src := fakeBackfillSource{embeddings: map[string][]float32{
		"a": {0, 1}, // should not overwrite
		"b": {0, 1},
	}}
	require.NoError(t, m.Backfill(ctx, src))

	assert.Equal(t, 2, m.Size())
	results, err := m.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", results[0].ID)
}

func TestMatrix_BatchSearch(t *testing.T) {
	m := NewMatrix()
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "a", []float32{1, 0}))
	require.NoError(t, m.Add(ctx, "b", []float32{0, 1}))

	out, err := m.BatchSearch(ctx, [][]float32{{1, 0}, {0, 1}}, 1)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0][0].ID)
	assert.Equal(t, "b", out[1][0].ID)
}
