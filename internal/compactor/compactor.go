// Package compactor summarizes groups of aged, low-importance memories into
// a single extractive summary record, reducing storage while preserving
// the gist of what was compacted.
package compactor

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/engramhq/engram/internal/embedcache"
	"github.com/engramhq/engram/internal/engramerr"
	"github.com/engramhq/engram/internal/provenance"
	"github.com/engramhq/engram/internal/recordstore"
	"github.com/engramhq/engram/pkg/vecmath"
)

const compactedCollection = "compacted"

// GroupResult reports the outcome of compacting a single group.
type GroupResult struct {
	GroupKey    string
	MemberCount int
	SummaryID   string
	Err         error
}

// Stats summarizes a full Run.
type Stats struct {
	MemoriesScanned   int
	MemoriesCompacted int
	SummariesCreated  int
	Groups            []GroupResult
}

// Compactor runs compaction cycles over a RecordStore.
type Compactor struct {
	store recordstore.Store
	cache *embedcache.Cache
	prov  provenance.Recorder
	cfg   Config
	log   zerolog.Logger
}

// New constructs a Compactor. prov may be a no-op Recorder when provenance
// tracking is disabled.
func New(store recordstore.Store, cache *embedcache.Cache, prov provenance.Recorder, cfg Config, log zerolog.Logger) *Compactor {
	return &Compactor{
		store: store,
		cache: cache,
		prov:  prov,
		cfg:   cfg,
		log:   log.With().Str("component", "compactor").Logger(),
	}
}

// Run scans for compaction candidates, groups them, and compacts every
// group meeting the minimum size. In dry-run mode no writes occur.
func (c *Compactor) Run(ctx context.Context) (Stats, error) {
	candidates, err := c.findCandidates(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{MemoriesScanned: len(candidates)}
	if len(candidates) < c.cfg.MinMemoriesToCompact {
		c.log.Info().Int("candidates", len(candidates)).Msg("not enough memories to compact")
		return stats, nil
	}

	groups := groupCandidates(candidates, c.cfg.MinMemoriesToCompact)

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		members := groups[key]
		result := c.compactGroup(ctx, key, members)
		stats.Groups = append(stats.Groups, result)
		if result.Err != nil {
			c.log.Error().Err(result.Err).Str("group", key).Msg("compaction group failed")
			continue
		}
		stats.MemoriesCompacted += result.MemberCount
		stats.SummariesCreated++
	}

	return stats, nil
}

// findCandidates scans records older than the configured age threshold and
// at or below the importance threshold, excluding already-protected ones.
func (c *Compactor) findCandidates(ctx context.Context) ([]recordstore.Record, error) {
	cutoff := time.Now().Add(-time.Duration(c.cfg.AgeThresholdDays) * 24 * time.Hour).Unix()
	filter := recordstore.ListFilter{BeforeTimestamp: &cutoff}

	const scanLimit = 1_000_000
	records, err := c.store.ListFiltered(ctx, filter, scanLimit)
	if err != nil {
		return nil, engramerr.WrapStorage(err, "scan compaction candidates")
	}

	out := make([]recordstore.Record, 0, len(records))
	for _, rec := range records {
		if rec.Importance > c.cfg.CompactImportanceThreshold {
			continue
		}
		if isProtected(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// compactGroup builds a summary for members, swaps it in for the group in
// one transaction, and records provenance lineage on success.
func (c *Compactor) compactGroup(ctx context.Context, groupKey string, members []recordstore.Record) GroupResult {
	result := GroupResult{GroupKey: groupKey, MemberCount: len(members)}

	summaryText := buildSummary(groupKey, members)

	if c.cfg.DryRun {
		c.log.Info().Str("group", groupKey).Int("members", len(members)).
			Msg("dry run: would compact group")
		return result
	}

	vec, err := c.cache.Embed(ctx, summaryText)
	if err != nil {
		result.Err = engramerr.WrapEmbedding(err, "embed compaction summary")
		return result
	}
	vec = vecmath.Normalize(vec)

	summary := recordstore.Record{
		ID:         summaryID(groupKey, members),
		Text:       summaryText,
		Timestamp:  time.Now().Unix(),
		Source:     "compaction",
		Importance: c.cfg.SummaryImportance,
		Tags:       []string{"compacted", "summary", groupKey, "auto-generated"},
		Collection: compactedCollection,
		Embedding:  vec,
	}

	memberIDs := make([]string, len(members))
	for i, m := range members {
		memberIDs[i] = m.ID
	}

	if err := c.store.Swap(ctx, summary, memberIDs); err != nil {
		result.Err = err
		return result
	}
	result.SummaryID = summary.ID

	if err := c.prov.RecordCompaction(ctx, summary.ID, memberIDs); err != nil {
		c.log.Warn().Err(err).Str("group", groupKey).Msg("provenance recording failed after successful swap")
	}

	c.log.Info().Str("group", groupKey).Int("members", len(members)).
		Str("summary_id", summary.ID).Msg("compacted group")

	return result
}

func summaryID(groupKey string, members []recordstore.Record) string {
	newest := members[0].Timestamp
	for _, m := range members {
		if m.Timestamp > newest {
			newest = m.Timestamp
		}
	}
	return "summary-" + groupKey + "-" + time.Unix(newest, 0).UTC().Format("20060102T150405Z")
}
