package postgres

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func migrations(dimension int) []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "001_create_memories",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
					return err
				}
				if err := tx.Exec(fmt.Sprintf(`
					CREATE TABLE IF NOT EXISTS memories (
						id TEXT PRIMARY KEY,
						text TEXT NOT NULL,
						timestamp BIGINT NOT NULL,
						source TEXT NOT NULL DEFAULT '',
						session_id TEXT NOT NULL DEFAULT '',
						importance DOUBLE PRECISION NOT NULL DEFAULT 0,
						tags TEXT NOT NULL DEFAULT '',
						collection TEXT NOT NULL DEFAULT 'knowledge',
						embedding vector(%d)
					)
				`, dimension)).Error; err != nil {
					return err
				}
				if err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_memories_collection ON memories(collection)`).Error; err != nil {
					return err
				}
				if err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_memories_timestamp ON memories(timestamp)`).Error; err != nil {
					return err
				}
				return tx.Exec(`
					CREATE INDEX IF NOT EXISTS idx_memories_embedding
					ON memories USING hnsw (embedding vector_cosine_ops)
				`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP TABLE IF EXISTS memories`).Error
			},
		},
	}
}
