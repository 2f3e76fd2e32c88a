package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/engramhq/engram/internal/embedcache"
	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/engramerr"
	sqlitestore "github.com/engramhq/engram/internal/recordstore/sqlite"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()

	store, err := sqlitestore.Open(filepath.Join(t.TempDir(), "engram.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cache, err := embedcache.New(embedcache.Options{
		Factory:   func() (embedding.Embedder, error) { return embedding.GetModel(embedding.LocalModelVersion) },
		Dimension: embedding.LocalModelDimension,
		CacheDir:  t.TempDir(),
		LRUSize:   64,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	return NewPipeline(store, cache, zerolog.Nop())
}

func TestRemember_AssignsIDAndPersists(t *testing.T) {
	p := newTestPipeline(t)
	id, err := p.Remember(context.Background(), "the quick brown fox jumps over the lazy dog", Options{Source: "agent-a"})
	require.NoError(t, err)
	require.Len(t, id, 16)
}

func TestRemember_DefaultsCollection(t *testing.T) {
	p := newTestPipeline(t)
	id, err := p.Remember(context.Background(), "a memory with no collection specified at all", Options{Source: "agent-a"})
	require.NoError(t, err)

	rec, ok, err := p.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, defaultCollection, rec.Collection)
}

func TestRemember_RejectsEmptyText(t *testing.T) {
	p := newTestPipeline(t)
	_, err := p.Remember(context.Background(), "", Options{Source: "agent-a"})
	require.Error(t, err)
	kind, ok := engramerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, engramerr.Validation, kind)
}

func TestRemember_RateLimitExceeded(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	for i := 0; i < rateLimitMax; i++ {
		_, err := p.Remember(ctx, strings.Repeat("x", 10)+string(rune('a'+i%26)), Options{Source: "agent-a"})
		require.NoError(t, err)
	}

	_, err := p.Remember(ctx, "one too many", Options{Source: "agent-a"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Rate limit")
}

func TestRemember_NearDuplicateReturnsExistingID(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	text := strings.Repeat("the same long memory text repeated for duplicate detection ", 3)

	first, err := p.Remember(ctx, text, Options{Source: "agent-a", Collection: "notes"})
	require.NoError(t, err)

	second, err := p.Remember(ctx, text, Options{Source: "agent-a", Collection: "notes"})
	require.NoError(t, err)

	require.Equal(t, first, second)

	stats, err := p.store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalRecords)
}

func TestRemember_ShortTextSkipsDuplicateProbe(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	first, err := p.Remember(ctx, "short", Options{Source: "agent-a"})
	require.NoError(t, err)

	second, err := p.Remember(ctx, "short", Options{Source: "agent-a"})
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func TestRemember_DifferentCollectionsDoNotDeduplicate(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	text := strings.Repeat("another fairly long piece of memory text for testing collections ", 3)

	first, err := p.Remember(ctx, text, Options{Source: "agent-a", Collection: "notes"})
	require.NoError(t, err)

	second, err := p.Remember(ctx, text, Options{Source: "agent-a", Collection: "other"})
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func TestRememberDocument_SplitsIntoTaggedChunks(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	var paragraphs []string
	for i := 0; i < 6; i++ {
		paragraphs = append(paragraphs, strings.Repeat(fmt.Sprintf("paragraph %d sentence about the runbook. ", i), 20))
	}
	doc := strings.Join(paragraphs, "\n\n")

	ids, err := p.RememberDocument(ctx, doc, "runbook-1", Options{Source: "agent-a", Collection: "docs"})
	require.NoError(t, err)
	require.Greater(t, len(ids), 1)

	for i, id := range ids {
		rec, ok, err := p.store.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Contains(t, rec.Tags, "doc:runbook-1")
		require.Contains(t, rec.Tags, fmt.Sprintf("chunk:%d", i))
		require.Equal(t, "docs", rec.Collection)
	}
}

func TestRememberDocument_TagsDocTitleAndSource(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	var paragraphs []string
	for i := 0; i < 6; i++ {
		paragraphs = append(paragraphs, strings.Repeat(fmt.Sprintf("paragraph %d sentence about the runbook. ", i), 20))
	}
	doc := strings.Join(paragraphs, "\n\n")

	ids, err := p.RememberDocument(ctx, doc, "runbook-1", Options{
		Source:     "agent-a",
		Collection: "docs",
		DocTitle:   "Runbook",
		DocSource:  "runbooks/runbook-1.md",
	})
	require.NoError(t, err)
	require.Greater(t, len(ids), 1)

	for _, id := range ids {
		rec, ok, err := p.store.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Contains(t, rec.Tags, fmt.Sprintf("chunk_total:%d", len(ids)))
		require.Contains(t, rec.Tags, "doc_title:Runbook")
		require.Contains(t, rec.Tags, "doc_source:runbooks/runbook-1.md")
	}
}

func TestRememberDocument_RejectsEmptyDocument(t *testing.T) {
	p := newTestPipeline(t)
	_, err := p.RememberDocument(context.Background(), "   ", "empty-doc", Options{Source: "agent-a"})
	require.Error(t, err)
}
