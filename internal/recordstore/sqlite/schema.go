package sqlite

import "github.com/engramhq/engram/internal/migrate"

var migrations = []migrate.Migration{
	{
		Version: 1,
		Name:    "create_memories",
		SQL: `
			CREATE TABLE memories (
				id TEXT PRIMARY KEY,
				text TEXT NOT NULL,
				timestamp INTEGER NOT NULL,
				source TEXT NOT NULL DEFAULT '',
				session_id TEXT NOT NULL DEFAULT '',
				importance REAL NOT NULL DEFAULT 0,
				tags TEXT NOT NULL DEFAULT '',
				collection TEXT NOT NULL DEFAULT 'knowledge',
				embedding BLOB
			);
			CREATE INDEX idx_memories_collection ON memories(collection);
			CREATE INDEX idx_memories_timestamp ON memories(timestamp);

			CREATE VIRTUAL TABLE memories_fts USING fts5(
				text,
				content='memories',
				content_rowid='rowid'
			);

			CREATE TRIGGER memories_ai AFTER INSERT ON memories BEGIN
				INSERT INTO memories_fts(rowid, text) VALUES (new.rowid, new.text);
			END;
			CREATE TRIGGER memories_ad AFTER DELETE ON memories BEGIN
				INSERT INTO memories_fts(memories_fts, rowid, text) VALUES('delete', old.rowid, old.text);
			END;
			CREATE TRIGGER memories_au AFTER UPDATE ON memories BEGIN
				INSERT INTO memories_fts(memories_fts, rowid, text) VALUES('delete', old.rowid, old.text);
				INSERT INTO memories_fts(rowid, text) VALUES (new.rowid, new.text);
			END;
		`,
	},
}
