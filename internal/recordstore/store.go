package recordstore

import (
	"context"
	"strings"
	"time"

	"github.com/engramhq/engram/internal/vectorindex"
)

// ListFilter narrows a record scan. A nil pointer field means "no filter on
// this dimension"; MinImportance uses a pointer specifically so that a
// caller-supplied 0 still applies the `importance >= 0` predicate.
type ListFilter struct {
	Collection      string
	MinImportance   *float64
	Since           *time.Time
	Before          *time.Time
	AfterTimestamp  *int64
	BeforeTimestamp *int64
	Source          string
	SessionID       string
	Tags            []string // match-any, substring against the comma-joined column
	TextLike        string
}

// Matches reports whether r satisfies every set field of f. Used to apply a
// filter predicate client-side against records already hydrated from an
// oversampled vector or FTS scan.
func (f ListFilter) Matches(r Record) bool {
	if f.Collection != "" && r.Collection != f.Collection {
		return false
	}
	if f.MinImportance != nil && r.Importance < *f.MinImportance {
		return false
	}
	ts := time.Unix(r.Timestamp, 0).UTC()
	if f.Since != nil && ts.Before(*f.Since) {
		return false
	}
	if f.Before != nil && ts.After(*f.Before) {
		return false
	}
	if f.AfterTimestamp != nil && r.Timestamp < *f.AfterTimestamp {
		return false
	}
	if f.BeforeTimestamp != nil && r.Timestamp > *f.BeforeTimestamp {
		return false
	}
	if f.Source != "" && r.Source != f.Source {
		return false
	}
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if len(f.Tags) > 0 {
		col := r.TagsColumn()
		matched := false
		for _, want := range f.Tags {
			if want != "" && strings.Contains(col, want) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.TextLike != "" && !strings.Contains(r.Text, f.TextLike) {
		return false
	}
	return true
}

// FTSHit is one BM25 match: Rank is FTS5's native rank (negative, smaller is
// better).
type FTSHit struct {
	ID   string
	Rank float64
}

// Stats summarizes store contents for introspection.
type Stats struct {
	CollectionCounts map[string]int
	TotalRecords     int
	TotalVectors     int
	Backend          string
	Path             string
}

// Store is the durable backend capability. Insert and Delete keep the
// record row, the FTS row, and the vector index entry mutually consistent
// within a single transaction/critical section.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, bool, error)
	GetMany(ctx context.Context, ids []string) ([]Record, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListFiltered(ctx context.Context, filter ListFilter, limit int) ([]Record, error)
	SearchFTS(ctx context.Context, query string, filter ListFilter, limit int) ([]FTSHit, error)
	// Swap inserts insert and deletes every id in deleteIDs as a single
	// all-or-nothing unit: either every write lands or none does. Used by
	// the compactor to replace a group of records with their summary.
	Swap(ctx context.Context, insert Record, deleteIDs []string) error
	Stats(ctx context.Context) (Stats, error)
	Backup(ctx context.Context, path string) (string, error)
	VectorIndex() vectorindex.Index
	Close() error
}
