package postgres

import (
	"github.com/pgvector/pgvector-go"

	"github.com/engramhq/engram/internal/recordstore"
)

// memoryModel is the gorm-mapped row for the memories table, mirroring the
// SQLite tier's schema with the embedding stored as a native pgvector
// column instead of a raw blob.
type memoryModel struct {
	ID         string `gorm:"primaryKey"`
	Text       string `gorm:"not null"`
	Timestamp  int64  `gorm:"index"`
	Source     string
	SessionID  string `gorm:"column:session_id"`
	Importance float64
	Tags       string
	Collection string           `gorm:"index"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
}

func (memoryModel) TableName() string { return "memories" }

func toModel(r recordstore.Record) memoryModel {
	return memoryModel{
		ID:         r.ID,
		Text:       r.Text,
		Timestamp:  r.Timestamp,
		Source:     r.Source,
		SessionID:  r.SessionID,
		Importance: r.Importance,
		Tags:       r.TagsColumn(),
		Collection: r.Collection,
		Embedding:  pgvector.NewVector(r.Embedding),
	}
}

func fromModel(m memoryModel) recordstore.Record {
	return recordstore.Record{
		ID:         m.ID,
		Text:       m.Text,
		Timestamp:  m.Timestamp,
		Source:     m.Source,
		SessionID:  m.SessionID,
		Importance: m.Importance,
		Tags:       recordstore.ParseTagsColumn(m.Tags),
		Collection: m.Collection,
		Embedding:  m.Embedding.Slice(),
	}
}
