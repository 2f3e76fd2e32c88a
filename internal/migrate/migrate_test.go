package migrate

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunner_AppliesInOrder(t *testing.T) {
	db := openTestDB(t)

	migrations := []Migration{
		{Version: 2, Name: "add_col", SQL: `ALTER TABLE widgets ADD COLUMN note TEXT`},
		{Version: 1, Name: "create_table", SQL: `CREATE TABLE widgets (id INTEGER PRIMARY KEY)`},
	}

	require.NoError(t, NewRunner(db, migrations).Apply())

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&n))
	require.Equal(t, 2, n)

	_, err := db.Exec(`INSERT INTO widgets (id, note) VALUES (1, 'hi')`)
	require.NoError(t, err)
}

func TestRunner_SkipsAlreadyApplied(t *testing.T) {
	db := openTestDB(t)
	migrations := []Migration{
		{Version: 1, Name: "create_table", SQL: `CREATE TABLE widgets (id INTEGER PRIMARY KEY)`},
	}

	r := NewRunner(db, migrations)
	require.NoError(t, r.Apply())
	require.NoError(t, r.Apply()) // second call must not re-run migration 1

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestRunner_FailureDoesNotRecordVersion(t *testing.T) {
	db := openTestDB(t)
	migrations := []Migration{
		{Version: 1, Name: "broken", SQL: `NOT VALID SQL AT ALL`},
	}

	err := NewRunner(db, migrations).Apply()
	require.Error(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&n))
	require.Equal(t, 0, n)
}
