package compactor

import (
	"fmt"
	"slices"
	"time"

	"github.com/engramhq/engram/internal/recordstore"
)

const conversationsCollection = "conversations"

// protectedTags marks a record as exempt from compaction regardless of age
// or importance.
var protectedTags = []string{"compacted", "summary", "protected"}

// isProtected reports whether rec carries any tag that exempts it from
// compaction.
func isProtected(rec recordstore.Record) bool {
	for _, tag := range rec.Tags {
		if slices.Contains(protectedTags, tag) {
			return true
		}
	}
	return false
}

// groupKey assigns rec to a compaction bucket: the conversations collection
// always buckets by (collection, month); everything else buckets by
// (collection, detected topic) when a topic is found, falling back to
// (collection, month) otherwise.
func groupKey(rec recordstore.Record) string {
	monthBucket := timeBucket(rec.Timestamp)

	if rec.Collection == conversationsCollection {
		return fmt.Sprintf("%s_%s", rec.Collection, monthBucket)
	}
	if topic := detectTopic(rec.Text); topic != "" {
		return fmt.Sprintf("%s_%s", rec.Collection, topic)
	}
	return fmt.Sprintf("%s_%s", rec.Collection, monthBucket)
}

func timeBucket(unixSeconds int64) string {
	t := time.Unix(unixSeconds, 0).UTC()
	return fmt.Sprintf("%04d_%02d", t.Year(), int(t.Month()))
}

// groupCandidates buckets records by groupKey and discards groups smaller
// than minSize.
func groupCandidates(records []recordstore.Record, minSize int) map[string][]recordstore.Record {
	groups := make(map[string][]recordstore.Record)
	for _, rec := range records {
		key := groupKey(rec)
		groups[key] = append(groups[key], rec)
	}
	for key, members := range groups {
		if len(members) < minSize {
			delete(groups, key)
		}
	}
	return groups
}
