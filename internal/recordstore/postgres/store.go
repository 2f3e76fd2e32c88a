// Package postgres is the alternate RecordStore backend for deployments
// that already run Postgres: gorm.io/gorm over jackc/pgx, schema managed by
// gormigrate, vectors stored natively in a pgvector HNSW-indexed column
// instead of the SQLite tier's in-memory matrix.
package postgres

import (
	"context"
	"strings"
	"sync"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/engramhq/engram/internal/engramerr"
	"github.com/engramhq/engram/internal/recordstore"
	"github.com/engramhq/engram/internal/vectorindex"
)

// Store is the Postgres RecordStore backend.
type Store struct {
	dsn   string
	db    *gorm.DB
	index *vectorindex.PGIndex
	mu    sync.Mutex
}

// Open connects to dsn, runs pending migrations, and returns a ready Store.
func Open(dsn string, dimension int) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, engramerr.WrapStorage(err, "open postgres connection")
	}

	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations(dimension))
	if err := m.Migrate(); err != nil {
		return nil, engramerr.WrapConfiguration(err, "apply postgres migrations")
	}

	return &Store{dsn: dsn, db: db, index: vectorindex.NewPGIndex(db)}, nil
}

// VectorIndex returns the pgvector-backed index tier.
func (s *Store) VectorIndex() vectorindex.Index { return s.index }

// Insert writes the record row (embedding included) in one transaction.
func (s *Store) Insert(ctx context.Context, rec recordstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Create(toModel(rec)).Error; err != nil {
		return engramerr.WrapStorage(err, "insert record")
	}
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (recordstore.Record, bool, error) {
	var m memoryModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return recordstore.Record{}, false, nil
	}
	if err != nil {
		return recordstore.Record{}, false, engramerr.WrapStorage(err, "get record")
	}
	return fromModel(m), true, nil
}

// GetMany returns every record in ids that exists, preserving order.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]recordstore.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []memoryModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, engramerr.WrapStorage(err, "get many records")
	}

	byID := make(map[string]recordstore.Record, len(models))
	for _, m := range models {
		byID[m.ID] = fromModel(m)
	}
	out := make([]recordstore.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Delete removes the record row. Deleting a non-existent id is a no-op
// success.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&memoryModel{})
	if res.Error != nil {
		return false, engramerr.WrapStorage(res.Error, "delete record")
	}
	return res.RowsAffected > 0, nil
}

// Swap inserts insert and deletes every id in deleteIDs inside one
// database transaction.
func (s *Store) Swap(ctx context.Context, insert recordstore.Record, deleteIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(toModel(insert)).Error; err != nil {
			return engramerr.WrapStorage(err, "swap: insert summary record")
		}
		if len(deleteIDs) > 0 {
			if err := tx.Where("id IN ?", deleteIDs).Delete(&memoryModel{}).Error; err != nil {
				return engramerr.WrapStorage(err, "swap: delete member records")
			}
		}
		return nil
	})
}

// ListFiltered returns up to limit records matching filter, most recent
// first.
func (s *Store) ListFiltered(ctx context.Context, filter recordstore.ListFilter, limit int) ([]recordstore.Record, error) {
	q := s.db.WithContext(ctx).Model(&memoryModel{})

	if filter.Collection != "" {
		q = q.Where("collection = ?", filter.Collection)
	}
	if filter.MinImportance != nil {
		q = q.Where("importance >= ?", *filter.MinImportance)
	}
	if filter.AfterTimestamp != nil {
		q = q.Where("timestamp >= ?", *filter.AfterTimestamp)
	}
	if filter.BeforeTimestamp != nil {
		q = q.Where("timestamp <= ?", *filter.BeforeTimestamp)
	}
	if filter.Since != nil {
		q = q.Where("timestamp >= ?", filter.Since.Unix())
	}
	if filter.Before != nil {
		q = q.Where("timestamp <= ?", filter.Before.Unix())
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.SessionID != "" {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	if filter.TextLike != "" {
		q = q.Where("text LIKE ?", "%"+filter.TextLike+"%")
	}
	if clause, args := tagLikeClause(filter.Tags); clause != "" {
		q = q.Where(clause, args...)
	}

	var models []memoryModel
	if err := q.Order("timestamp DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, engramerr.WrapStorage(err, "list filtered records")
	}
	out := make([]recordstore.Record, len(models))
	for i, m := range models {
		out[i] = fromModel(m)
	}
	return out, nil
}

// tagLikeClause groups tags into a single parenthesized "tags LIKE ? OR tags
// LIKE ? ..." clause so callers can AND it onto the rest of a filter without
// GORM's Or widening the whole WHERE (mirrors the sqlite tier's
// buildFilterQuery grouping in internal/recordstore/sqlite/store.go).
func tagLikeClause(tags []string) (string, []any) {
	var parts []string
	var args []any
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		parts = append(parts, "tags LIKE ?")
		args = append(args, "%"+tag+"%")
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// SearchFTS runs a Postgres full-text query via plainto_tsquery/ts_rank,
// restricted to filter.
func (s *Store) SearchFTS(ctx context.Context, query string, filter recordstore.ListFilter, limit int) ([]recordstore.FTSHit, error) {
	sqlQuery := `
		SELECT id, -ts_rank(to_tsvector('english', text), plainto_tsquery('english', ?)) AS rank
		FROM memories
		WHERE to_tsvector('english', text) @@ plainto_tsquery('english', ?)
	`
	args := []any{query, query}

	var where []string
	if filter.Collection != "" {
		where = append(where, "collection = ?")
		args = append(args, filter.Collection)
	}
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if len(where) > 0 {
		sqlQuery += " AND " + strings.Join(where, " AND ")
	}
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	var hits []recordstore.FTSHit
	if err := s.db.WithContext(ctx).Raw(sqlQuery, args...).Scan(&hits).Error; err != nil {
		return nil, engramerr.WrapStorage(err, "search fts")
	}
	return hits, nil
}

// Stats reports per-collection counts, total vectors, and backend identity.
func (s *Store) Stats(ctx context.Context) (recordstore.Stats, error) {
	type row struct {
		Collection string
		Count      int
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&memoryModel{}).
		Select("collection, count(*) as count").Group("collection").Scan(&rows).Error; err != nil {
		return recordstore.Stats{}, engramerr.WrapStorage(err, "stats by collection")
	}

	counts := make(map[string]int)
	total := 0
	for _, r := range rows {
		counts[r.Collection] = r.Count
		total += r.Count
	}

	return recordstore.Stats{
		CollectionCounts: counts,
		TotalRecords:     total,
		TotalVectors:     s.index.Size(),
		Backend:          "postgres",
		Path:             s.dsn,
	}, nil
}

// Backup issues a pg_dump-equivalent is out of scope for this in-process
// engine; Postgres deployments back the database up with their own
// operator tooling, so this returns a descriptive error rather than
// silently doing nothing.
func (s *Store) Backup(context.Context, string) (string, error) {
	return "", engramerr.StorageErrorf("backup is not supported on the postgres backend; use your Postgres operator's own backup tooling")
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
