// Package migrate runs versioned, forward-only SQL migrations against the
// SQLite RecordStore, mirroring the teacher's schema_versions table and
// one-transaction-per-migration discipline.
package migrate

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration is one forward schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Runner applies pending migrations in ascending version order.
type Runner struct {
	db         *sql.DB
	migrations []Migration
}

// NewRunner creates a Runner over db with the given migrations, which need
// not be pre-sorted.
func NewRunner(db *sql.DB, migrations []Migration) *Runner {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Version > sorted[j].Version; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return &Runner{db: db, migrations: sorted}
}

// Apply ensures schema_version exists and runs every migration newer than
// the current version, each inside its own transaction. A failure rolls
// back that migration and aborts without recording a partial version.
func (r *Runner) Apply() error {
	if _, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("migrate: create schema_version: %w", err)
	}

	current, err := r.currentVersion()
	if err != nil {
		return err
	}

	for _, m := range r.migrations {
		if m.Version <= current {
			continue
		}
		if err := r.applyOne(m); err != nil {
			return fmt.Errorf("migrate: apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (r *Runner) currentVersion() (int, error) {
	var v sql.NullInt64
	err := r.db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("migrate: read current version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

func (r *Runner) applyOne(m Migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
		m.Version, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}
