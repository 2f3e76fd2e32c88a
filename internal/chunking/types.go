// Package chunking splits long memory text into semantically coherent
// pieces on meaning boundaries (paragraph, sentence, clause, word) rather
// than fixed character or token windows.
package chunking

import "fmt"

// ChunkOptions configures the chunking cascade.
type ChunkOptions struct {
	// TargetTokens is the preferred chunk size; a paragraph at or under this
	// budget is kept whole.
	TargetTokens int
	// MaxTokens is the hard ceiling; sentences are grouped greedily up to
	// this budget before a chunk is flushed.
	MaxTokens int
	// OverlapSentences is how many trailing sentences from a chunk are
	// repeated at the start of the next one, for retrieval continuity.
	OverlapSentences int
	// MinChunkChars drops degenerate trailing fragments shorter than this.
	MinChunkChars int
}

// DefaultChunkOptions returns the reference 256/384-token budget with a
// single sentence of overlap.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		TargetTokens:     256,
		MaxTokens:        384,
		OverlapSentences: 1,
		MinChunkChars:    50,
	}
}

func (o ChunkOptions) validate() error {
	if o.TargetTokens <= 0 || o.MaxTokens <= 0 {
		return fmt.Errorf("chunking: TargetTokens and MaxTokens must be positive")
	}
	if o.TargetTokens > o.MaxTokens {
		return fmt.Errorf("chunking: TargetTokens (%d) must not exceed MaxTokens (%d)", o.TargetTokens, o.MaxTokens)
	}
	if o.OverlapSentences < 0 {
		return fmt.Errorf("chunking: OverlapSentences must be non-negative")
	}
	return nil
}

// ChunkType records which stage of the cascade produced a Chunk.
type ChunkType string

const (
	TypeParagraph ChunkType = "paragraph"
	TypeSentences ChunkType = "sentences"
	TypeClause    ChunkType = "clause"
	TypeWordSpan  ChunkType = "word_span"
)

// Chunk is one semantically coherent piece of a document.
type Chunk struct {
	content      string
	index        int
	total        int
	hasPrev      bool
	hasNext      bool
	docID        string
	docTitle     string
	docSource    string
	sectionTitle string
	chunkType    ChunkType
	tokenCount   int
	charStart    int
	charEnd      int
}

// Content returns the chunk text, including any sentence overlap prepended
// from the previous chunk.
func (c Chunk) Content() string { return c.content }

// Index returns this chunk's 0-based position among its document's chunks.
func (c Chunk) Index() int { return c.index }

// Total returns the number of chunks the source document was split into.
func (c Chunk) Total() int { return c.total }

// HasPrevious reports whether a chunk precedes this one in the document.
func (c Chunk) HasPrevious() bool { return c.hasPrev }

// HasNext reports whether a chunk follows this one in the document.
func (c Chunk) HasNext() bool { return c.hasNext }

// Identifier returns a stable per-document identifier for this chunk.
func (c Chunk) Identifier() string {
	return fmt.Sprintf("%s#%d", c.docID, c.index)
}

// DocTitle returns the source document's title, or "" if none was supplied.
func (c Chunk) DocTitle() string { return c.docTitle }

// DocSource returns the source document's origin (e.g. a file path or URL),
// or "" if none was supplied.
func (c Chunk) DocSource() string { return c.docSource }

// SectionTitle returns the nearest preceding heading, or "" if none.
func (c Chunk) SectionTitle() string { return c.sectionTitle }

// Type reports which cascade stage produced this chunk.
func (c Chunk) Type() ChunkType { return c.chunkType }

// TokenCount returns the exact BPE token count for this chunk's content.
func (c Chunk) TokenCount() int { return c.tokenCount }

// CharRange returns the [start, end) byte offsets of this chunk within the
// original document text.
func (c Chunk) CharRange() (int, int) { return c.charStart, c.charEnd }

// SearchableContent returns the text used for full-text indexing: the
// section title, if any, followed by the chunk content.
func (c Chunk) SearchableContent() string {
	if c.sectionTitle == "" {
		return c.content
	}
	return c.sectionTitle + "\n" + c.content
}
