// Package recordstore defines the Record type and the Store capability that
// every durable backend (SQLite, Postgres) implements: append-only insert
// coupled to the vector and full-text indexes, point and bulk lookup,
// cascading delete, stats, and file-level backup.
package recordstore

import "strings"

// Record is the indivisible unit stored and retrieved.
type Record struct {
	ID         string
	Text       string
	Timestamp  int64
	Source     string
	SessionID  string
	Importance float64
	Tags       []string
	Collection string
	Embedding  []float32
}

// TagsColumn renders Tags as the single comma-joined TEXT column the schema
// persists them in.
func (r Record) TagsColumn() string {
	return strings.Join(r.Tags, ",")
}

// ParseTagsColumn splits the persisted comma-joined column back into tags,
// dropping empty entries (an empty column parses to nil, not [""]).
func ParseTagsColumn(col string) []string {
	if col == "" {
		return nil
	}
	parts := strings.Split(col, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
