package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/engramhq/engram/internal/recordstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecord(id string) recordstore.Record {
	return recordstore.Record{
		ID:         id,
		Text:       "the quick brown fox jumps over the lazy dog",
		Timestamp:  1000,
		Source:     "cli",
		SessionID:  "sess-1",
		Importance: 0.5,
		Tags:       []string{"animals", "idiom"},
		Collection: "knowledge",
		Embedding:  []float32{1, 0, 0, 0},
	}
}

func TestStore_InsertGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("abc123")
	require.NoError(t, s.Insert(ctx, rec))

	got, ok, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Text, got.Text)
	assert.Equal(t, rec.Tags, got.Tags)
	assert.Equal(t, rec.Embedding, got.Embedding)

	assert.Equal(t, 1, s.VectorIndex().Size())
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_GetManyPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, sampleRecord("a")))
	require.NoError(t, s.Insert(ctx, sampleRecord("b")))
	require.NoError(t, s.Insert(ctx, sampleRecord("c")))

	recs, err := s.GetMany(ctx, []string{"c", "a", "missing", "b"})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{recs[0].ID, recs[1].ID, recs[2].ID})
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, sampleRecord("abc")))

	ok, err := s.Delete(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	_, exists, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 0, s.VectorIndex().Size())
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.Delete(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SearchFTS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1 := sampleRecord("a")
	r1.Text = "vector databases store high dimensional embeddings"
	r2 := sampleRecord("b")
	r2.Text = "traditional databases use exact matching"

	require.NoError(t, s.Insert(ctx, r1))
	require.NoError(t, s.Insert(ctx, r2))

	hits, err := s.SearchFTS(ctx, "embeddings", recordstore.ListFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestStore_SearchFTS_SpecialCharactersAreLiteral(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, sampleRecord("a")))

	_, err := s.SearchFTS(ctx, `fox AND (`, recordstore.ListFilter{}, 10)
	require.NoError(t, err)
}

func TestStore_ListFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1 := sampleRecord("a")
	r1.Collection = "work"
	r1.Importance = 0.9
	r2 := sampleRecord("b")
	r2.Collection = "personal"
	r2.Importance = 0.1

	require.NoError(t, s.Insert(ctx, r1))
	require.NoError(t, s.Insert(ctx, r2))

	min := 0.5
	recs, err := s.ListFiltered(ctx, recordstore.ListFilter{MinImportance: &min}, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, sampleRecord("a")))
	require.NoError(t, s.Insert(ctx, sampleRecord("b")))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 2, stats.TotalVectors)
	assert.Equal(t, "sqlite", stats.Backend)
	assert.Equal(t, 2, stats.CollectionCounts["knowledge"])
}

func TestStore_BackupAndReopen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, sampleRecord("a")))

	dst := filepath.Join(t.TempDir(), "backup.db")
	path, err := s.Backup(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, dst, path)

	reopened, err := Open(dst, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
}

func TestStore_BackfillsIndexOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Insert(context.Background(), sampleRecord("a")))
	require.NoError(t, s.Close())

	reopened, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.VectorIndex().Size())
}
