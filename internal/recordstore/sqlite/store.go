// Package sqlite is the primary RecordStore backend: modernc.org/sqlite
// (pure Go, no cgo), write-ahead journalling, a single process-wide write
// mutex serialising inserts and deletes, and an in-memory Matrix vector
// index rebuilt on open since the pure-Go driver cannot load a native
// vector extension.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/engramhq/engram/internal/engramerr"
	"github.com/engramhq/engram/internal/migrate"
	"github.com/engramhq/engram/internal/recordstore"
	"github.com/engramhq/engram/internal/vectorindex"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// Store is the SQLite RecordStore backend.
type Store struct {
	path string
	db   *sql.DB
	log  zerolog.Logger

	// mu pairs every write to db with its matching write to index: writers
	// hold it exclusively so a reader taking RLock never observes a record
	// row (visible to other connections as soon as WAL-mode ExecContext
	// returns) before its vector/FTS entry exists.
	mu    sync.RWMutex
	index *vectorindex.Matrix

	stmtMu sync.Mutex
	stmts  map[string]*sql.Stmt
}

// Open opens (creating if necessary) the SQLite store at path, applies
// pending migrations, and backfills the in-memory vector index from
// existing rows.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, engramerr.WrapStorage(err, "create database directory")
			}
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, engramerr.WrapStorage(err, "open sqlite database")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, engramerr.WrapStorage(err, "ping sqlite database")
	}
	if err := migrate.NewRunner(db, migrations).Apply(); err != nil {
		_ = db.Close()
		return nil, engramerr.WrapConfiguration(err, "apply sqlite migrations")
	}

	s := &Store{
		path:  path,
		db:    db,
		log:   log.With().Str("component", "recordstore-sqlite").Logger(),
		index: vectorindex.NewMatrix(),
		stmts: make(map[string]*sql.Stmt),
	}

	if err := s.index.Backfill(context.Background(), s); err != nil {
		_ = db.Close()
		return nil, engramerr.WrapStorage(err, "backfill vector index")
	}
	return s, nil
}

// getStmt returns a cached prepared statement for query, preparing it on
// first use.
func (s *Store) getStmt(query string) (*sql.Stmt, error) {
	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()

	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	s.stmts[query] = stmt
	return stmt, nil
}

// Close drains the statement cache and closes the database.
func (s *Store) Close() error {
	s.stmtMu.Lock()
	for _, stmt := range s.stmts {
		_ = stmt.Close()
	}
	s.stmts = nil
	s.stmtMu.Unlock()
	return s.db.Close()
}

// VectorIndex returns the in-memory matrix tier.
func (s *Store) VectorIndex() vectorindex.Index { return s.index }

// Insert writes the record row, updates the FTS index (via trigger), and
// adds the vector to the in-memory index, all within one write-mutex
// critical section.
func (s *Store) Insert(ctx context.Context, rec recordstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, err := s.getStmt(`
		INSERT INTO memories (id, text, timestamp, source, session_id, importance, tags, collection, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return engramerr.WrapStorage(err, "prepare insert")
	}

	_, err = stmt.ExecContext(ctx, rec.ID, rec.Text, rec.Timestamp, rec.Source, rec.SessionID,
		rec.Importance, rec.TagsColumn(), rec.Collection, encodeVector(rec.Embedding))
	if err != nil {
		return engramerr.WrapStorage(err, "insert record")
	}

	return s.index.Add(ctx, rec.ID, rec.Embedding)
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (recordstore.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stmt, err := s.getStmt(`
		SELECT id, text, timestamp, source, session_id, importance, tags, collection, embedding
		FROM memories WHERE id = ?
	`)
	if err != nil {
		return recordstore.Record{}, false, engramerr.WrapStorage(err, "prepare get")
	}

	rec, err := scanRecordRows(stmt.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return recordstore.Record{}, false, nil
	}
	if err != nil {
		return recordstore.Record{}, false, engramerr.WrapStorage(err, "get record")
	}
	return rec, true, nil
}

// GetMany returns every record in ids that exists, preserving the caller's
// requested order.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]recordstore.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`
		SELECT id, text, timestamp, source, session_id, importance, tags, collection, embedding
		FROM memories WHERE id IN (%s)
	`, placeholders)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engramerr.WrapStorage(err, "get many records")
	}
	defer rows.Close()

	byID := make(map[string]recordstore.Record, len(ids))
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, engramerr.WrapStorage(err, "scan record")
		}
		byID[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, engramerr.WrapStorage(err, "iterate records")
	}

	out := make([]recordstore.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Delete removes the record (and, by FTS trigger, its searchable entry) and
// the matrix's vector entry. Deleting a non-existent id is a no-op success.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, err := s.getStmt(`DELETE FROM memories WHERE id = ?`)
	if err != nil {
		return false, engramerr.WrapStorage(err, "prepare delete")
	}

	res, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return false, engramerr.WrapStorage(err, "delete record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, engramerr.WrapStorage(err, "rows affected")
	}
	if n == 0 {
		return false, nil
	}

	if err := s.index.Remove(ctx, id); err != nil {
		return false, engramerr.WrapStorage(err, "remove from vector index")
	}
	return true, nil
}

// Swap inserts insert and deletes every id in deleteIDs inside one SQL
// transaction: either every write commits or none does.
func (s *Store) Swap(ctx context.Context, insert recordstore.Record, deleteIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return engramerr.WrapStorage(err, "begin swap transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memories (id, text, timestamp, source, session_id, importance, tags, collection, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, insert.ID, insert.Text, insert.Timestamp, insert.Source, insert.SessionID,
		insert.Importance, insert.TagsColumn(), insert.Collection, encodeVector(insert.Embedding)); err != nil {
		return engramerr.WrapStorage(err, "swap: insert summary record")
	}

	for _, id := range deleteIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
			return engramerr.WrapStorage(err, "swap: delete member record")
		}
	}

	if err := tx.Commit(); err != nil {
		return engramerr.WrapStorage(err, "commit swap transaction")
	}

	if err := s.index.Add(ctx, insert.ID, insert.Embedding); err != nil {
		return engramerr.WrapStorage(err, "swap: add summary vector")
	}
	for _, id := range deleteIDs {
		if err := s.index.Remove(ctx, id); err != nil {
			return engramerr.WrapStorage(err, "swap: remove member vector")
		}
	}
	return nil
}

// ListFiltered returns up to limit records matching filter, most recent
// first.
func (s *Store) ListFiltered(ctx context.Context, filter recordstore.ListFilter, limit int) ([]recordstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildFilterQuery(filter, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engramerr.WrapStorage(err, "list filtered records")
	}
	defer rows.Close()

	var out []recordstore.Record
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, engramerr.WrapStorage(err, "scan record")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func buildFilterQuery(filter recordstore.ListFilter, limit int) (string, []any) {
	var where []string
	var args []any

	if filter.Collection != "" {
		where = append(where, "collection = ?")
		args = append(args, filter.Collection)
	}
	if filter.MinImportance != nil {
		where = append(where, "importance >= ?")
		args = append(args, *filter.MinImportance)
	}
	if filter.AfterTimestamp != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.AfterTimestamp)
	}
	if filter.BeforeTimestamp != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, *filter.BeforeTimestamp)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.Unix())
	}
	if filter.Before != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, filter.Before.Unix())
	}
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.TextLike != "" {
		where = append(where, "text LIKE ?")
		args = append(args, "%"+filter.TextLike+"%")
	}
	if len(filter.Tags) > 0 {
		var tagClauses []string
		for _, tag := range filter.Tags {
			if tag == "" {
				continue
			}
			tagClauses = append(tagClauses, "tags LIKE ?")
			args = append(args, "%"+tag+"%")
		}
		if len(tagClauses) > 0 {
			where = append(where, "("+strings.Join(tagClauses, " OR ")+")")
		}
	}

	query := `SELECT id, text, timestamp, source, session_id, importance, tags, collection, embedding FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)
	return query, args
}

// SearchFTS runs a BM25 query restricted to filter, quoting the query text
// as a literal phrase so special FTS5 syntax characters can't escape it.
func (s *Store) SearchFTS(ctx context.Context, query string, filter recordstore.ListFilter, limit int) ([]recordstore.FTSHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	phrase := ftsPhraseQuery(query)

	sqlQuery := `
		SELECT m.id, memories_fts.rank
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ?
	`
	args := []any{phrase}

	var where []string
	if filter.Collection != "" {
		where = append(where, "m.collection = ?")
		args = append(args, filter.Collection)
	}
	if filter.Source != "" {
		where = append(where, "m.source = ?")
		args = append(args, filter.Source)
	}
	if filter.SessionID != "" {
		where = append(where, "m.session_id = ?")
		args = append(args, filter.SessionID)
	}
	if len(where) > 0 {
		sqlQuery += " AND " + strings.Join(where, " AND ")
	}
	sqlQuery += " ORDER BY memories_fts.rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, engramerr.WrapStorage(err, "search fts")
	}
	defer rows.Close()

	var hits []recordstore.FTSHit
	for rows.Next() {
		var hit recordstore.FTSHit
		if err := rows.Scan(&hit.ID, &hit.Rank); err != nil {
			return nil, engramerr.WrapStorage(err, "scan fts hit")
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func ftsPhraseQuery(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}

// Stats reports per-collection counts, total vectors, and backend identity.
func (s *Store) Stats(ctx context.Context) (recordstore.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT collection, COUNT(*) FROM memories GROUP BY collection`)
	if err != nil {
		return recordstore.Stats{}, engramerr.WrapStorage(err, "stats by collection")
	}
	defer rows.Close()

	counts := make(map[string]int)
	total := 0
	for rows.Next() {
		var collection string
		var n int
		if err := rows.Scan(&collection, &n); err != nil {
			return recordstore.Stats{}, engramerr.WrapStorage(err, "scan stats row")
		}
		counts[collection] = n
		total += n
	}
	if err := rows.Err(); err != nil {
		return recordstore.Stats{}, engramerr.WrapStorage(err, "iterate stats")
	}

	return recordstore.Stats{
		CollectionCounts: counts,
		TotalRecords:     total,
		TotalVectors:     s.index.Size(),
		Backend:          "sqlite",
		Path:             s.path,
	}, nil
}

// Backup copies the database file to dst (or a timestamped default path
// alongside it, if dst is empty).
func (s *Store) Backup(ctx context.Context, dst string) (string, error) {
	if s.path == ":memory:" {
		return "", engramerr.StorageErrorf("cannot back up an in-memory database")
	}
	if dst == "" {
		dst = fmt.Sprintf("%s.%s.bak", s.path, time.Now().UTC().Format("20060102T150405Z"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return "", engramerr.WrapStorage(err, "checkpoint wal before backup")
	}

	src, err := os.Open(s.path)
	if err != nil {
		return "", engramerr.WrapStorage(err, "open database file for backup")
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", engramerr.WrapStorage(err, "create backup file")
	}
	defer out.Close()

	if _, err := copyAll(out, src); err != nil {
		return "", engramerr.WrapStorage(err, "copy database file")
	}
	return dst, nil
}

// AllEmbeddings implements vectorindex.BackfillSource.
func (s *Store) AllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM memories WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if len(blob) > 0 {
			out[id] = decodeVector(blob)
		}
	}
	return out, rows.Err()
}
