package chunking

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/clipperhouse/uax29/v2/sentences"
	"github.com/clipperhouse/uax29/v2/words"
	"github.com/tiktoken-go/tokenizer"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n+`)

// clauseBreak splits on a comma or semicolon followed by whitespace, the
// fallback boundary for sentences too long to keep whole.
var clauseBreak = regexp.MustCompile(`[,;]\s+`)

var headingPrefix = regexp.MustCompile(`^#{1,6}\s+`)

// Chunker splits document text into Chunks on meaning boundaries: paragraph
// breaks first, falling back to sentences, then clauses, then fixed word
// spans for runs of text with no punctuation at all.
type Chunker struct {
	opts  ChunkOptions
	codec tokenizer.Codec
}

// NewChunker constructs a Chunker. A nil tokenizer.Codec falls back to the
// words/0.75 estimate for every token count.
func NewChunker(opts ChunkOptions) (*Chunker, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("chunking: load tokenizer: %w", err)
	}
	return &Chunker{opts: opts, codec: codec}, nil
}

// block is a paragraph-level unit of source text before segment assembly.
type block struct {
	content  string
	isHeader string // non-empty heading title, if this block is a heading
}

// segment is a pre-overlap chunk candidate.
type segment struct {
	content      string
	sectionTitle string
	chunkType    ChunkType
	charStart    int
	charEnd      int
}

// Chunk splits text into Chunks for the document identified by docID.
func (c *Chunker) Chunk(ctx context.Context, text string, docID string) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("chunking: text is empty")
	}

	blocks := c.splitBlocks(text)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("chunking: no content after splitting into paragraphs")
	}

	segments := c.buildSegments(blocks)
	segments = c.applyOverlap(segments)

	chunks := make([]Chunk, 0, len(segments))
	for _, seg := range segments {
		content := strings.TrimSpace(seg.content)
		if len(content) < c.opts.MinChunkChars {
			continue
		}
		chunks = append(chunks, Chunk{
			content:      content,
			docID:        docID,
			sectionTitle: seg.sectionTitle,
			chunkType:    seg.chunkType,
			tokenCount:   c.tokenCount(content),
			charStart:    seg.charStart,
			charEnd:      seg.charEnd,
		})
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunking: every candidate chunk was below MinChunkChars")
	}

	total := len(chunks)
	for i := range chunks {
		chunks[i].index = i
		chunks[i].total = total
		chunks[i].hasPrev = i > 0
		chunks[i].hasNext = i < total-1
	}
	return chunks, nil
}

// ChunkDocument is Chunk plus document-level context: every emitted chunk
// additionally carries the document's title and source, for callers that
// have them available (SPEC_FULL.md's "optional document-level metadata").
func (c *Chunker) ChunkDocument(ctx context.Context, text, docID, docTitle, docSource string) ([]Chunk, error) {
	chunks, err := c.Chunk(ctx, text, docID)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].docTitle = docTitle
		chunks[i].docSource = docSource
	}
	return chunks, nil
}

// splitBlocks splits text on paragraph breaks, classifying markdown-style
// headings.
func (c *Chunker) splitBlocks(text string) []block {
	raw := paragraphBreak.Split(text, -1)
	blocks := make([]block, 0, len(raw))
	for _, p := range raw {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		if m := headingPrefix.FindString(trimmed); m != "" {
			blocks = append(blocks, block{content: trimmed, isHeader: strings.TrimSpace(trimmed[len(m):])})
			continue
		}
		blocks = append(blocks, block{content: trimmed})
	}
	return blocks
}

// buildSegments merges blocks into segments under the target/max token
// budget. A heading always starts a new segment and becomes the section
// title for everything until the next heading. A paragraph that alone
// exceeds MaxTokens is chunked by sentence, then clause, then word span.
func (c *Chunker) buildSegments(blocks []block) []segment {
	var segments []segment
	var current strings.Builder
	section := ""
	offset := 0
	segStart := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		segments = append(segments, segment{
			content:      current.String(),
			sectionTitle: section,
			chunkType:    TypeParagraph,
			charStart:    segStart,
			charEnd:      offset,
		})
		current.Reset()
	}

	for _, blk := range blocks {
		blkTokens := c.fastEstimate(blk.content)

		if blk.isHeader != "" {
			flush()
			section = blk.isHeader
			offset += len(blk.content) + 2
			segStart = offset
			continue
		}

		if blkTokens > c.opts.MaxTokens {
			flush()
			for _, sub := range c.splitOversizedParagraph(blk.content) {
				segments = append(segments, segment{
					content:      sub.content,
					sectionTitle: section,
					chunkType:    sub.chunkType,
					charStart:    offset,
					charEnd:      offset + len(sub.content),
				})
			}
			offset += len(blk.content) + 2
			segStart = offset
			continue
		}

		currentTokens := c.fastEstimate(current.String())
		if currentTokens > 0 && currentTokens+blkTokens > c.opts.MaxTokens {
			flush()
			segStart = offset
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(blk.content)
		offset += len(blk.content) + 2
	}
	flush()
	return segments
}

// splitOversizedParagraph chunks a single paragraph that already exceeds
// MaxTokens, falling back from sentences to clauses to fixed word spans.
func (c *Chunker) splitOversizedParagraph(para string) []segment {
	sents := splitSentences(para)
	if len(sents) > 1 {
		return c.groupUnits(sents, TypeSentences)
	}

	clauses := clauseBreak.Split(para, -1)
	if len(clauses) > 1 {
		return c.groupUnits(clauses, TypeClause)
	}

	return c.groupUnits(splitWordSpans(para, c.opts.TargetTokens), TypeWordSpan)
}

// groupUnits greedily packs units (sentences or clauses) into segments under
// MaxTokens, in the style of the paragraph-level grouping above.
func (c *Chunker) groupUnits(units []string, kind ChunkType) []segment {
	var out []segment
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			out = append(out, segment{content: current.String(), chunkType: kind})
			current.Reset()
		}
	}

	for _, u := range units {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		uTokens := c.fastEstimate(u)
		currentTokens := c.fastEstimate(current.String())
		if currentTokens > 0 && currentTokens+uTokens > c.opts.MaxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(u)
	}
	flush()
	return out
}

// applyOverlap prepends the last OverlapSentences sentences of each segment
// to the one that follows it, so retrieval never starts a chunk cold.
func (c *Chunker) applyOverlap(segments []segment) []segment {
	if c.opts.OverlapSentences <= 0 || len(segments) <= 1 {
		return segments
	}

	out := make([]segment, len(segments))
	out[0] = segments[0]
	for i := 1; i < len(segments); i++ {
		prev := splitSentences(segments[i-1].content)
		n := c.opts.OverlapSentences
		if n > len(prev) {
			n = len(prev)
		}
		if n == 0 {
			out[i] = segments[i]
			continue
		}
		tail := strings.Join(prev[len(prev)-n:], " ")
		seg := segments[i]
		seg.content = tail + "\n\n" + seg.content
		out[i] = seg
	}
	return out
}

// splitSentences uses the UAX #29 sentence segmenter, which handles
// abbreviations and embedded punctuation far better than a regex.
func splitSentences(text string) []string {
	var out []string
	seg := sentences.FromString(text)
	for seg.Next() {
		if s := strings.TrimSpace(seg.Value()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitWordSpans breaks text with no sentence or clause punctuation into
// fixed-size runs of words, the last-resort cascade stage.
func splitWordSpans(text string, targetTokens int) []string {
	var tokens []string
	seg := words.FromString(text)
	for seg.Next() {
		v := seg.Value()
		if strings.TrimSpace(v) == "" {
			continue
		}
		tokens = append(tokens, v)
	}

	wordsPerSpan := int(float64(targetTokens) / 0.75)
	if wordsPerSpan <= 0 {
		wordsPerSpan = 1
	}

	var spans []string
	for i := 0; i < len(tokens); i += wordsPerSpan {
		end := min(i+wordsPerSpan, len(tokens))
		spans = append(spans, strings.Join(tokens[i:end], " "))
	}
	return spans
}

// fastEstimate is the words/0.75 approximation used during the greedy
// grouping passes, where exact BPE encoding on every partial string would be
// needlessly slow.
func (c *Chunker) fastEstimate(text string) int {
	if text == "" {
		return 0
	}
	return int(float64(len(strings.Fields(text))) / 0.75)
}

// tokenCount returns the exact BPE token count for a finished chunk.
func (c *Chunker) tokenCount(text string) int {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return c.fastEstimate(text)
	}
	return len(ids)
}
