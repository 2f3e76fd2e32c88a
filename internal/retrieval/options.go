// Package retrieval implements the Recall read path: query embedding,
// dense+sparse hybrid fusion, importance/recency reranking, and bulk
// hydration of scored ids back into full records.
package retrieval

import (
	"strconv"
	"strings"
	"time"

	"github.com/engramhq/engram/internal/recordstore"
)

const maxQueryChars = 1000

// Options configures a single Recall/BatchRecall call. Legacy top-level
// fields take precedence over the same key present in Filters, matching
// the reference's merge order.
type Options struct {
	Collection    string
	TopK          int
	Filters       map[string]string
	MinImportance *float64
	Since         *time.Time
	Before        *time.Time
	TimeoutMillis int64
	Oversample    int
}

const (
	defaultTopK       = 10
	defaultOversample = 4
)

// resolveFilter merges legacy fields and the Filters map into a single
// ListFilter, legacy fields winning over the same key in Filters.
func resolveFilter(opts Options, now time.Time) recordstore.ListFilter {
	f := recordstore.ListFilter{}

	get := func(key string) (string, bool) {
		v, ok := opts.Filters[key]
		return v, ok
	}

	f.Collection = opts.Collection
	if f.Collection == "" {
		if v, ok := get("collection"); ok {
			f.Collection = v
		}
	}

	if opts.MinImportance != nil {
		f.MinImportance = opts.MinImportance
	} else if v, ok := get("min_importance"); ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinImportance = &parsed
		}
	}

	if opts.Since != nil {
		f.Since = opts.Since
	} else if v, ok := get("since"); ok {
		if d, ok := parseRelativeDuration(v); ok {
			t := now.Add(-d)
			f.Since = &t
		}
	}

	if opts.Before != nil {
		f.Before = opts.Before
	} else if v, ok := get("before"); ok {
		if d, ok := parseRelativeDuration(v); ok {
			t := now.Add(-d)
			f.Before = &t
		}
	}

	if v, ok := get("after_timestamp"); ok {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.AfterTimestamp = &ts
		}
	}
	if v, ok := get("before_timestamp"); ok {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.BeforeTimestamp = &ts
		}
	}
	if v, ok := get("source"); ok {
		f.Source = v
	}
	if v, ok := get("session_id"); ok {
		f.SessionID = v
	}
	if v, ok := get("tags"); ok {
		for _, t := range strings.Split(v, ",") {
			if t != "" {
				f.Tags = append(f.Tags, t)
			}
		}
	}
	if v, ok := get("text_like"); ok {
		f.TextLike = v
	}

	return f
}

// parseRelativeDuration parses the reference's Nm|Nh|Nd|Nw shorthand.
func parseRelativeDuration(s string) (time.Duration, bool) {
	if len(s) < 2 {
		return 0, false
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
