package vectorindex

import (
	"context"
	"sync"

	"github.com/engramhq/engram/pkg/vecmath"
)

// Matrix is the in-memory VectorIndex tier for the SQLite RecordStore
// backend: a flat slice of vectors plus a parallel id list, searched by full
// top-K dot product via pkg/vecmath. It is rebuilt from RecordStore on
// startup and mutated in lock-step with every insert/delete, inside the same
// write-mutex critical section the RecordStore uses.
type Matrix struct {
	mu   sync.RWMutex
	ids  []string
	rows [][]float32
	pos  map[string]int
}

// NewMatrix creates an empty Matrix.
func NewMatrix() *Matrix {
	return &Matrix{pos: make(map[string]int)}
}

// Add inserts or replaces the vector for id.
func (m *Matrix) Add(_ context.Context, id string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]float32, len(vec))
	copy(cp, vec)

	if i, ok := m.pos[id]; ok {
		m.rows[i] = cp
		return nil
	}
	m.pos[id] = len(m.ids)
	m.ids = append(m.ids, id)
	m.rows = append(m.rows, cp)
	return nil
}

// Remove deletes id's vector, if present. Swap-with-last keeps the
// underlying slices dense without an O(n) shift.
func (m *Matrix) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.pos[id]
	if !ok {
		return nil
	}
	last := len(m.ids) - 1
	m.ids[i] = m.ids[last]
	m.rows[i] = m.rows[last]
	m.pos[m.ids[i]] = i

	m.ids = m.ids[:last]
	m.rows = m.rows[:last]
	delete(m.pos, id)
	return nil
}

// Search returns the k nearest ids to vec by cosine similarity.
func (m *Matrix) Search(_ context.Context, vec []float32, k int) ([]ScoredID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scored := vecmath.TopK(m.ids, m.rows, vec, k)
	out := make([]ScoredID, len(scored))
	for i, s := range scored {
		out[i] = ScoredID{ID: s.ID, Score: s.Score}
	}
	return out, nil
}

// BatchSearch runs Search once per query vector under a single read lock.
func (m *Matrix) BatchSearch(ctx context.Context, vecs [][]float32, k int) ([][]ScoredID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][]ScoredID, len(vecs))
	for i, v := range vecs {
		scored := vecmath.TopK(m.ids, m.rows, v, k)
		row := make([]ScoredID, len(scored))
		for j, s := range scored {
			row[j] = ScoredID{ID: s.ID, Score: s.Score}
		}
		out[i] = row
		if err := ctx.Err(); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Size returns the number of indexed vectors.
func (m *Matrix) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Backfill rebuilds the matrix from source if it is missing entries the
// source has. It never removes entries the matrix already holds.
func (m *Matrix) Backfill(ctx context.Context, source BackfillSource) error {
	all, err := source.AllEmbeddings(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, vec := range all {
		if _, ok := m.pos[id]; ok {
			continue
		}
		cp := make([]float32, len(vec))
		copy(cp, vec)
		m.pos[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.rows = append(m.rows, cp)
	}
	return nil
}
