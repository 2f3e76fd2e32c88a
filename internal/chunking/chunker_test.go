package chunking

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_EmptyText(t *testing.T) {
	c, err := NewChunker(DefaultChunkOptions())
	require.NoError(t, err)

	_, err = c.Chunk(context.Background(), "   ", "doc-1")
	assert.Error(t, err)
}

func TestChunk_ShortParagraphStaysWhole(t *testing.T) {
	c, err := NewChunker(DefaultChunkOptions())
	require.NoError(t, err)

	text := "Vector databases store high-dimensional embeddings for similarity search."
	chunks, err := c.Chunk(context.Background(), text, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Content())
	assert.Equal(t, TypeParagraph, chunks[0].Type())
	assert.Equal(t, 0, chunks[0].Index())
	assert.Equal(t, 1, chunks[0].Total())
	assert.False(t, chunks[0].HasPrevious())
	assert.False(t, chunks[0].HasNext())
	assert.Empty(t, chunks[0].DocTitle())
	assert.Empty(t, chunks[0].DocSource())
}

func TestChunk_HeadingSetsSectionTitle(t *testing.T) {
	c, err := NewChunker(DefaultChunkOptions())
	require.NoError(t, err)

	text := "# Overview\n\nThis section introduces the system and its goals in plain language."
	chunks, err := c.Chunk(context.Background(), text, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Overview", chunks[0].SectionTitle())
}

func TestChunk_LongDocumentSplitsAndOverlaps(t *testing.T) {
	opts := DefaultChunkOptions()
	opts.TargetTokens = 20
	opts.MaxTokens = 30
	opts.OverlapSentences = 1
	opts.MinChunkChars = 1
	c, err := NewChunker(opts)
	require.NoError(t, err)

	var paras []string
	for i := 0; i < 8; i++ {
		paras = append(paras, "This is a reasonably long sentence about databases. It has more than a few words in it.")
	}
	text := strings.Join(paras, "\n\n")

	chunks, err := c.Chunk(context.Background(), text, "doc-1")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index())
		assert.NotEmpty(t, ch.Identifier())
		assert.Greater(t, ch.TokenCount(), 0)
		assert.Equal(t, len(chunks), ch.Total())
		assert.Equal(t, i > 0, ch.HasPrevious())
		assert.Equal(t, i < len(chunks)-1, ch.HasNext())
	}

	assert.True(t, strings.Contains(chunks[1].Content(), "databases"))
}

func TestChunkDocument_SetsDocTitleAndSource(t *testing.T) {
	opts := DefaultChunkOptions()
	opts.TargetTokens = 20
	opts.MaxTokens = 30
	opts.OverlapSentences = 1
	opts.MinChunkChars = 1
	c, err := NewChunker(opts)
	require.NoError(t, err)

	var paras []string
	for i := 0; i < 8; i++ {
		paras = append(paras, "This is a reasonably long sentence about databases. It has more than a few words in it.")
	}
	text := strings.Join(paras, "\n\n")

	chunks, err := c.ChunkDocument(context.Background(), text, "doc-1", "Database Primer", "runbooks/db.md")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks {
		assert.Equal(t, "Database Primer", ch.DocTitle())
		assert.Equal(t, "runbooks/db.md", ch.DocSource())
	}
}

func TestChunk_OversizedParagraphFallsBackToSentences(t *testing.T) {
	opts := DefaultChunkOptions()
	opts.TargetTokens = 10
	opts.MaxTokens = 15
	opts.MinChunkChars = 1
	c, err := NewChunker(opts)
	require.NoError(t, err)

	text := "First sentence here is short. Second sentence also fairly short. " +
		"Third sentence adds even more words to the paragraph. Fourth sentence closes it out nicely."

	chunks, err := c.Chunk(context.Background(), text, "doc-1")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.Equal(t, TypeSentences, ch.Type())
	}
}

func TestChunkOptions_Validate(t *testing.T) {
	opts := DefaultChunkOptions()
	opts.TargetTokens = 0
	_, err := NewChunker(opts)
	assert.Error(t, err)

	opts = DefaultChunkOptions()
	opts.TargetTokens = 500
	opts.MaxTokens = 100
	_, err = NewChunker(opts)
	assert.Error(t, err)
}

func TestChunk_SearchableContentIncludesSectionTitle(t *testing.T) {
	c, err := NewChunker(DefaultChunkOptions())
	require.NoError(t, err)

	text := "## Background\n\nSome context about the project and its motivations follows here."
	chunks, err := c.Chunk(context.Background(), text, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, strings.HasPrefix(chunks[0].SearchableContent(), "Background\n"))
}
