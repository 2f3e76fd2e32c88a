package vectorindex

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// PGIndex is the Postgres VectorIndex tier: vectors live directly in the
// memories table's embedding column, HNSW-indexed, queried with pgvector's
// cosine-distance operator. Add/Remove are no-ops here — the embedding
// column is written by the same gorm.DB transaction that writes the record
// row, so there is no separate index structure to keep in lock-step.
type PGIndex struct {
	db *gorm.DB
}

// NewPGIndex wraps db, which must have the memories table with a
// vector(D) embedding column already migrated.
func NewPGIndex(db *gorm.DB) *PGIndex {
	return &PGIndex{db: db}
}

// Add is a no-op: the embedding column is written as part of the record
// insert transaction in internal/recordstore/postgres.
func (p *PGIndex) Add(context.Context, string, []float32) error { return nil }

// Remove is a no-op: the row (and its embedding column) is deleted as part
// of the record delete transaction.
func (p *PGIndex) Remove(context.Context, string) error { return nil }

type pgScoredRow struct {
	ID       string
	Distance float32
}

// Search issues `ORDER BY embedding <=> $1 LIMIT k` and converts distance to
// similarity via sim = 1 - distance.
func (p *PGIndex) Search(ctx context.Context, vec []float32, k int) ([]ScoredID, error) {
	var rows []pgScoredRow
	err := p.db.WithContext(ctx).
		Table("memories").
		Select("id, embedding <=> ? AS distance", pgvector.NewVector(vec)).
		Order("distance ASC").
		Limit(k).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}

	out := make([]ScoredID, len(rows))
	for i, r := range rows {
		out[i] = ScoredID{ID: r.ID, Score: 1 - r.Distance}
	}
	return out, nil
}

// BatchSearch runs Search once per query vector.
func (p *PGIndex) BatchSearch(ctx context.Context, vecs [][]float32, k int) ([][]ScoredID, error) {
	out := make([][]ScoredID, len(vecs))
	for i, v := range vecs {
		res, err := p.Search(ctx, v, k)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

// Size returns the number of rows with a non-null embedding.
func (p *PGIndex) Size() int {
	var n int64
	p.db.Table("memories").Where("embedding IS NOT NULL").Count(&n)
	return int(n)
}

// Backfill is a no-op: embeddings already live in the memories table itself,
// there is nothing to rebuild from a separate BackfillSource.
func (p *PGIndex) Backfill(context.Context, BackfillSource) error { return nil }
