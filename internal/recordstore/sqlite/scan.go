package sqlite

import (
	"io"

	"github.com/engramhq/engram/internal/recordstore"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecordRows(row rowScanner) (recordstore.Record, error) {
	var rec recordstore.Record
	var tagsCol string
	var embedding []byte

	if err := row.Scan(&rec.ID, &rec.Text, &rec.Timestamp, &rec.Source, &rec.SessionID,
		&rec.Importance, &tagsCol, &rec.Collection, &embedding); err != nil {
		return recordstore.Record{}, err
	}
	rec.Tags = recordstore.ParseTagsColumn(tagsCol)
	if len(embedding) > 0 {
		rec.Embedding = decodeVector(embedding)
	}
	return rec, nil
}

func copyAll(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}
