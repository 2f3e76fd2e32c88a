package engram

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testOpen(t *testing.T, dbName string) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, dbName), WithCacheDir(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_ReturnsSameInstanceForSamePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.db")

	a, err := Open(path, WithCacheDir(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b, err := Open(path, WithCacheDir(dir))
	require.NoError(t, err)

	require.Same(t, a, b)
}

func TestOpen_DifferentPathsReturnDifferentInstances(t *testing.T) {
	a := testOpen(t, "a.db")
	b := testOpen(t, "b.db")
	require.NotSame(t, a, b)
}

func TestOpen_ReopensFreshInstanceAfterClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.db")

	a, err := Open(path, WithCacheDir(dir))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(path, WithCacheDir(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NotSame(t, a, b)
}

func TestStore_RememberAndRecallRoundTrip(t *testing.T) {
	s := testOpen(t, "engram.db")
	ctx := context.Background()

	id, err := s.Remember(ctx, "the deployment runbook lives in the infra repository", RememberOptions{
		Collection: "knowledge",
		Importance: 0.7,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	results, err := s.Recall(ctx, "where does the deployment runbook live", RecallOptions{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, id, results[0].Record.ID)
}

func TestStore_DeleteRemovesRecord(t *testing.T) {
	s := testOpen(t, "engram.db")
	ctx := context.Background()

	id, err := s.Remember(ctx, "a short memory about nothing in particular", RememberOptions{})
	require.NoError(t, err)

	ok, err := s.Delete(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Delete(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_StatsReflectsInserts(t *testing.T) {
	s := testOpen(t, "engram.db")
	ctx := context.Background()

	_, err := s.Remember(ctx, "one memory to count", RememberOptions{Collection: "knowledge"})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalRecords)
	require.Equal(t, 1, stats.CollectionCounts["knowledge"])
}

func TestStore_BackupWritesFile(t *testing.T) {
	s := testOpen(t, "engram.db")
	ctx := context.Background()

	_, err := s.Remember(ctx, "a memory worth backing up", RememberOptions{})
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "backup.db")
	written, err := s.Backup(ctx, dst)
	require.NoError(t, err)
	require.NotEmpty(t, written)
}

func TestStore_RememberDocumentSplitsAndTagsChunks(t *testing.T) {
	s := testOpen(t, "engram.db")
	ctx := context.Background()

	var paragraphs []string
	for i := 0; i < 6; i++ {
		paragraphs = append(paragraphs, strings.Repeat(fmt.Sprintf("paragraph %d about the deployment process. ", i), 20))
	}
	doc := strings.Join(paragraphs, "\n\n")

	ids, err := s.RememberDocument(ctx, doc, "deploy-guide", RememberOptions{Collection: "docs"})
	require.NoError(t, err)
	require.Greater(t, len(ids), 1)

	results, err := s.Recall(ctx, "deployment process", RecallOptions{Collection: "docs", TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestStore_GetRecentReturnsStoredRecords(t *testing.T) {
	s := testOpen(t, "engram.db")
	ctx := context.Background()

	firstID, err := s.Remember(ctx, "a note about the project roadmap", RememberOptions{Collection: "knowledge"})
	require.NoError(t, err)
	secondID, err := s.Remember(ctx, "a note about an unrelated topic entirely", RememberOptions{Collection: "knowledge"})
	require.NoError(t, err)

	recent, err := s.GetRecent(ctx, 2, "knowledge")
	require.NoError(t, err)
	require.Len(t, recent, 2)
	ids := []string{recent[0].ID, recent[1].ID}
	require.ElementsMatch(t, []string{firstID, secondID}, ids)
}
