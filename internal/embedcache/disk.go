package embedcache

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

// diskCache is the on-disk persistent tier of the embedding cache, backed by
// the cache.db schema described in SPEC_FULL.md §6 and grounded directly on
// memento/embed.py's PersistentCache: a single embeddings table keyed by
// digest, storing the raw vector bytes and a last-accessed timestamp that is
// refreshed on every read.
type diskCache struct {
	db  *sql.DB
	dim int
}

func openDiskCache(path string, dim int) (*diskCache, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache db: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS embeddings (
			hash TEXT PRIMARY KEY,
			vector BLOB NOT NULL,
			last_accessed REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_access ON embeddings(last_accessed);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &diskCache{db: db, dim: dim}, nil
}

func (d *diskCache) close() error {
	return d.db.Close()
}

func (d *diskCache) get(ctx context.Context, key string) ([]float32, bool, error) {
	var blob []byte
	err := d.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE hash = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache: %w", err)
	}

	if _, err := d.db.ExecContext(ctx, `UPDATE embeddings SET last_accessed = ? WHERE hash = ?`, nowEpoch(), key); err != nil {
		return nil, false, fmt.Errorf("refresh last_accessed: %w", err)
	}

	return decodeVector(blob, d.dim), true, nil
}

func (d *diskCache) put(ctx context.Context, key string, vec []float32) error {
	blob := encodeVector(vec)
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO embeddings (hash, vector, last_accessed) VALUES (?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET vector = excluded.vector, last_accessed = excluded.last_accessed
	`, key, blob, nowEpoch())
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

func (d *diskCache) count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, x := range vec {
		bits := math.Float32bits(x)
		buf[i*4+0] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte, dim int) []float32 {
	n := len(buf) / 4
	if dim > 0 && n != dim {
		dim = n
	}
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(buf[i*4+0]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
