// Package vectorindex provides an approximate-nearest-neighbour index over
// length-D unit vectors, keyed by record id. The in-memory Matrix tier backs
// the SQLite RecordStore (which has no native vector extension available in
// pure Go); the Postgres tier stores vectors directly in an HNSW-indexed
// pgvector column instead.
package vectorindex

import "context"

// ScoredID is one ranked search result.
type ScoredID struct {
	ID    string
	Score float32
}

// Index is the capability surface every VectorIndex tier implements.
type Index interface {
	Add(ctx context.Context, id string, vec []float32) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, vec []float32, k int) ([]ScoredID, error)
	BatchSearch(ctx context.Context, vecs [][]float32, k int) ([][]ScoredID, error)
	Size() int
	Backfill(ctx context.Context, source BackfillSource) error
}

// BackfillSource supplies the full set of stored vectors on startup, so an
// index tier that lost its in-memory state (the Matrix tier, on process
// restart) can be rebuilt before serving its first query.
type BackfillSource interface {
	AllEmbeddings(ctx context.Context) (map[string][]float32, error)
}
