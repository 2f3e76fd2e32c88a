// Package ingest implements the Remember write path: rate limiting,
// sanitisation, validation, near-duplicate detection, embedding, id
// assignment, and transactional persistence.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/engramhq/engram/internal/chunking"
	"github.com/engramhq/engram/internal/embedcache"
	"github.com/engramhq/engram/internal/engramerr"
	"github.com/engramhq/engram/internal/recordstore"
	"github.com/engramhq/engram/pkg/vecmath"
)

const (
	rateLimitWindow = 60 * time.Second
	rateLimitMax    = 60

	duplicateMinLength   = 50
	duplicateScoreThresh = 0.95
	duplicateProbeK      = 1
	defaultCollection    = "knowledge"
)

// Options configures a single Remember call.
type Options struct {
	Collection string
	Importance float64
	Source     string
	SessionID  string
	Tags       []string

	// DocTitle and DocSource are document-level metadata consumed by
	// RememberDocument; Remember ignores them.
	DocTitle  string
	DocSource string
}

// Pipeline implements the Remember write path over a RecordStore and
// EmbedCache.
type Pipeline struct {
	store   recordstore.Store
	cache   *embedcache.Cache
	limiter *rateLimiter
	log     zerolog.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(store recordstore.Store, cache *embedcache.Cache, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:   store,
		cache:   cache,
		limiter: newRateLimiter(rateLimitWindow, rateLimitMax),
		log:     log.With().Str("component", "ingest-pipeline").Logger(),
	}
}

// Remember validates, deduplicates, embeds, and persists text, returning
// its assigned (or pre-existing, on a duplicate hit) id.
func (p *Pipeline) Remember(ctx context.Context, text string, opts Options) (string, error) {
	if opts.Collection == "" {
		opts.Collection = defaultCollection
	}

	if !p.limiter.allow(opts.Source, time.Now()) {
		return "", engramerr.StorageErrorf("Rate limit exceeded for source %q: max %d inserts per %s", opts.Source, rateLimitMax, rateLimitWindow)
	}

	cleanText, cleanTags := sanitize(text, opts.Tags, p.log)
	opts.Tags = cleanTags

	if err := validate(cleanText, opts.Tags); err != nil {
		return "", err
	}

	vec, err := p.cache.Embed(ctx, cleanText)
	if err != nil {
		return "", engramerr.WrapEmbedding(err, "embed ingested text")
	}
	vec = vecmath.Normalize(vec)

	if len(cleanText) > duplicateMinLength {
		if existing, ok, err := p.probeDuplicate(ctx, vec, opts.Collection); err != nil {
			return "", err
		} else if ok {
			return existing, nil
		}
	}

	id := assignID(cleanText, time.Now())
	rec := recordstore.Record{
		ID:         id,
		Text:       cleanText,
		Timestamp:  time.Now().Unix(),
		Source:     opts.Source,
		SessionID:  opts.SessionID,
		Importance: opts.Importance,
		Tags:       opts.Tags,
		Collection: opts.Collection,
		Embedding:  vec,
	}

	if err := p.store.Insert(ctx, rec); err != nil {
		return "", err
	}

	return id, nil
}

// RememberDocument splits a long document into semantically coherent
// chunks and remembers each one individually, returning their ids in chunk
// order. Every chunk is tagged with its document id, chunk index, and
// position among its siblings (in addition to opts.Tags) so chunks
// belonging to the same document can be found, ordered, and reassembled
// later. opts.DocTitle and opts.DocSource, when set, are carried onto every
// chunk's tags too. Rate limiting, sanitisation, validation, and
// near-duplicate detection apply per chunk, exactly as in Remember.
func (p *Pipeline) RememberDocument(ctx context.Context, text string, docID string, opts Options) ([]string, error) {
	chunker, err := chunking.NewChunker(chunking.DefaultChunkOptions())
	if err != nil {
		return nil, engramerr.ConfigurationErrorf("construct document chunker: %v", err)
	}

	chunks, err := chunker.ChunkDocument(ctx, text, docID, opts.DocTitle, opts.DocSource)
	if err != nil {
		return nil, engramerr.ValidationErrorf("chunk document %q: %v", docID, err)
	}

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		tags := append(append([]string{}, opts.Tags...),
			fmt.Sprintf("doc:%s", docID),
			fmt.Sprintf("chunk:%d", c.Index()),
			fmt.Sprintf("chunk_total:%d", c.Total()))
		if c.DocTitle() != "" {
			tags = append(tags, fmt.Sprintf("doc_title:%s", c.DocTitle()))
		}
		if c.DocSource() != "" {
			tags = append(tags, fmt.Sprintf("doc_source:%s", c.DocSource()))
		}

		chunkOpts := opts
		chunkOpts.Tags = tags

		id, err := p.Remember(ctx, c.SearchableContent(), chunkOpts)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// probeDuplicate runs a vector-only similarity search (no rerank) against
// the same collection, returning the existing id when the top score meets
// the near-duplicate threshold.
func (p *Pipeline) probeDuplicate(ctx context.Context, vec []float32, collection string) (string, bool, error) {
	results, err := p.store.VectorIndex().Search(ctx, vec, duplicateProbeK*8)
	if err != nil {
		return "", false, engramerr.WrapStorage(err, "near-duplicate probe")
	}

	for _, r := range results {
		if r.Score < duplicateScoreThresh {
			continue
		}
		rec, ok, err := p.store.Get(ctx, r.ID)
		if err != nil {
			return "", false, engramerr.WrapStorage(err, "near-duplicate probe lookup")
		}
		if ok && rec.Collection == collection {
			return r.ID, true, nil
		}
	}
	return "", false, nil
}
