package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/engramhq/engram/internal/embedcache"
	"github.com/engramhq/engram/internal/engramerr"
	"github.com/engramhq/engram/internal/recordstore"
	"github.com/engramhq/engram/pkg/vecmath"
)

var tracer = otel.Tracer("github.com/engramhq/engram/internal/retrieval")

// recallCounter is a no-op instrument until a host process wires up an
// OpenTelemetry MeterProvider; Add is then cheap and safe to call
// unconditionally.
var recallCounter, _ = otel.Meter("github.com/engramhq/engram/internal/retrieval").
	Int64Counter("engram_retrieval_recall_total", metric.WithDescription("Total Recall/BatchRecall query invocations"))

// Engine is the Recall read path over a RecordStore and EmbedCache.
type Engine struct {
	store recordstore.Store
	cache *embedcache.Cache
	group singleflight.Group
	log   zerolog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(store recordstore.Store, cache *embedcache.Cache, log zerolog.Logger) *Engine {
	return &Engine{store: store, cache: cache, log: log.With().Str("component", "retrieval-engine").Logger()}
}

// Recall returns up to opts.TopK hybrid-ranked results for query.
func (e *Engine) Recall(ctx context.Context, query string, opts Options) ([]Result, error) {
	results, err := e.BatchRecall(ctx, []string{query}, opts)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// BatchRecall embeds every query in one batch call and recalls each
// independently, sharing no candidate state across queries (each query's
// predicate and hybrid search are still evaluated on its own).
func (e *Engine) BatchRecall(ctx context.Context, queries []string, opts Options) ([][]Result, error) {
	if opts.TimeoutMillis > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMillis)*time.Millisecond)
		defer cancel()
	}

	out := make([][]Result, len(queries))

	trimmed := make([]string, len(queries))
	anyNonEmpty := false
	for i, q := range queries {
		t := strings.TrimSpace(q)
		trimmed[i] = t
		if t != "" {
			anyNonEmpty = true
		}
	}
	if !anyNonEmpty {
		for i := range out {
			out[i] = []Result{}
		}
		return out, nil
	}

	for _, q := range trimmed {
		if len(q) > maxQueryChars {
			return nil, engramerr.ValidationErrorf("query exceeds maximum length of %d characters", maxQueryChars)
		}
	}

	vecs := make([][]float32, len(trimmed))
	toEmbed := make([]string, 0, len(trimmed))
	toEmbedIdx := make([]int, 0, len(trimmed))
	for i, q := range trimmed {
		if q == "" {
			continue
		}
		toEmbed = append(toEmbed, q)
		toEmbedIdx = append(toEmbedIdx, i)
	}

	embedded, err := e.cache.EmbedBatch(ctx, toEmbed)
	if err != nil {
		return nil, engramerr.WrapEmbedding(err, "embed recall queries")
	}
	for i, idx := range toEmbedIdx {
		vecs[idx] = vecmath.Normalize(embedded[i])
	}

	now := time.Now()
	filter := resolveFilter(opts, now)
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	oversample := opts.Oversample
	if oversample <= 0 {
		oversample = defaultOversample
	}

	for i, q := range trimmed {
		if q == "" {
			out[i] = []Result{}
			continue
		}

		spanCtx, span := tracer.Start(ctx, "retrieval.recall_one")
		res, err := e.recallOneCoalesced(spanCtx, q, vecs[i], filter, topK, oversample, now)
		span.End()
		recallCounter.Add(ctx, 1)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}

	return out, nil
}

// recallOneCoalesced shares identical in-flight recalls (same query, filter,
// and topK) across concurrent callers via singleflight, so a burst of
// duplicate queries hits the store once rather than once per caller.
func (e *Engine) recallOneCoalesced(ctx context.Context, query string, vec []float32, filter recordstore.ListFilter, topK, oversample int, now time.Time) ([]Result, error) {
	key := coalesceKey(query, filter, topK)
	v, err, _ := e.group.Do(key, func() (any, error) {
		return e.recallOne(ctx, query, vec, filter, topK, oversample, now)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Result), nil
}

func coalesceKey(query string, filter recordstore.ListFilter, topK int) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteByte('\x00')
	b.WriteString(filter.Collection)
	b.WriteByte('\x00')
	b.WriteString(filter.Source)
	b.WriteByte('\x00')
	b.WriteString(filter.SessionID)
	b.WriteByte('\x00')
	b.WriteString(filter.TextLike)
	b.WriteByte('\x00')
	b.WriteString(strings.Join(filter.Tags, ","))
	return b.String()
}

// maxDenseWidenRounds bounds how many times recallOne doubles its dense KNN
// oversample when a predicate (collection, tags, ...) filters away enough of
// the raw nearest neighbours that fewer than topK survive. Each round's
// denseK doubles, so four rounds covers a 16x oversample without unbounded
// retries on a pathological query.
const maxDenseWidenRounds = 4

// recallOne runs one dense+sparse hybrid query and reranks the fused
// candidates. The in-memory Matrix vector tier has no predicate pushdown (it
// holds vectors only, no record metadata), so a filtered Recall that found
// too few matches in the raw top denseK*2 nearest neighbours re-runs the
// dense search with a wider denseK rather than silently returning a
// short/empty result: each retry's oversample is widened until either topK
// filtered results are found or the dense search already covers the whole
// index, at which point no further widening can help.
func (e *Engine) recallOne(ctx context.Context, query string, vec []float32, filter recordstore.ListFilter, topK, oversample int, now time.Time) ([]Result, error) {
	indexSize := e.store.VectorIndex().Size()

	var results []Result
	denseMult := oversample
	for round := 0; ; round++ {
		denseK := topK * denseMult
		var err error
		results, err = e.recallOnceDense(ctx, query, vec, filter, topK, denseK, now)
		if err != nil {
			return nil, err
		}
		if len(results) >= topK || round >= maxDenseWidenRounds-1 || denseK*2 >= indexSize {
			break
		}
		denseMult *= 2
	}
	return results, nil
}

// recallOnceDense runs dense KNN at denseK*2 candidates fused with sparse FTS
// at denseK candidates, hydrates, reranks, and returns up to topK results
// matching filter.
func (e *Engine) recallOnceDense(ctx context.Context, query string, vec []float32, filter recordstore.ListFilter, topK, denseK int, now time.Time) ([]Result, error) {
	type fused struct {
		sim  float32
		bm25 float32
	}
	scores := make(map[string]*fused)

	dense, err := e.store.VectorIndex().Search(ctx, vec, denseK*2)
	if err != nil {
		return nil, engramerr.WrapStorage(err, "dense knn search")
	}

	sparse, err := e.store.SearchFTS(ctx, query, filter, denseK)
	if err != nil {
		return nil, engramerr.WrapStorage(err, "sparse fts search")
	}

	candidateIDs := make([]string, 0, len(dense)+len(sparse))
	seen := make(map[string]bool)
	for _, d := range dense {
		if !seen[d.ID] {
			seen[d.ID] = true
			candidateIDs = append(candidateIDs, d.ID)
		}
	}
	for _, s := range sparse {
		if !seen[s.ID] {
			seen[s.ID] = true
			candidateIDs = append(candidateIDs, s.ID)
		}
	}
	if len(candidateIDs) == 0 {
		return []Result{}, nil
	}

	records, err := e.store.GetMany(ctx, candidateIDs)
	if err != nil {
		return nil, engramerr.WrapStorage(err, "hydrate recall candidates")
	}
	byID := make(map[string]recordstore.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	for _, s := range sparse {
		scores[s.ID] = &fused{bm25: bm25ScoreFromRank(s.Rank)}
	}
	for _, d := range dense {
		if f, ok := scores[d.ID]; ok {
			f.sim = d.Score
		} else {
			scores[d.ID] = &fused{sim: d.Score}
		}
	}

	results := make([]Result, 0, len(candidateIDs))
	for id, f := range scores {
		rec, ok := byID[id]
		if !ok || !filter.Matches(rec) {
			continue
		}
		combined := weightVector*f.sim + weightBM25*f.bm25
		ageDays := now.Sub(time.Unix(rec.Timestamp, 0)).Hours() / 24
		score := rerankWeightCombined*combined + rerankWeightImportance*float32(rec.Importance) + rerankWeightRecency*recencyScore(ageDays)

		results = append(results, Result{
			Record:     rec,
			Similarity: f.sim,
			BM25:       f.bm25,
			Combined:   combined,
			Score:      score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// GetRecent returns the n most recent records in collection, newest first.
func (e *Engine) GetRecent(ctx context.Context, n int, collection string) ([]recordstore.Record, error) {
	filter := recordstore.ListFilter{Collection: collection}
	return e.store.ListFiltered(ctx, filter, n)
}
