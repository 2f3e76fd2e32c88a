// Package provenance records optional compaction lineage edges in a
// FalkorDB graph, so a caller can trace a compacted summary back to the
// records it replaced without rehydrating deleted rows from a backup.
// Disabled unless an address is configured; lineage is metadata only and
// is never consulted to decide what to compact.
package provenance

import (
	"context"
	"fmt"

	"github.com/falkordb/falkordb-go"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog"
)

const graphName = "engram_provenance"

// Recorder records COMPACTED_FROM edges between a summary record and the
// member records it replaced.
type Recorder interface {
	RecordCompaction(ctx context.Context, summaryID string, memberIDs []string) error
	Close() error
}

// noopRecorder is used when no graph address is configured.
type noopRecorder struct{}

func (noopRecorder) RecordCompaction(context.Context, string, []string) error { return nil }
func (noopRecorder) Close() error                                             { return nil }

// NewRecorder returns a FalkorDB-backed Recorder when addr is non-empty,
// or a no-op Recorder otherwise.
func NewRecorder(addr string, log zerolog.Logger) (Recorder, error) {
	if addr == "" {
		return noopRecorder{}, nil
	}

	conn, err := redis.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("provenance: dial falkordb at %s: %w", addr, err)
	}

	return &falkordbRecorder{
		graph: falkordb.GraphNew(graphName, conn),
		conn:  conn,
		log:   log.With().Str("component", "provenance").Logger(),
	}, nil
}

type falkordbRecorder struct {
	graph falkordb.Graph
	conn  redis.Conn
	log   zerolog.Logger
}

// RecordCompaction MERGEs a Memory node for the summary and each member,
// then a COMPACTED_FROM edge from the summary to each member. MERGE makes
// this safe to re-run if a prior attempt partially failed.
func (r *falkordbRecorder) RecordCompaction(_ context.Context, summaryID string, memberIDs []string) error {
	if _, err := r.graph.Query(
		"MERGE (s:Memory {id: $id})",
		map[string]interface{}{"id": summaryID},
		nil,
	); err != nil {
		return fmt.Errorf("provenance: merge summary node: %w", err)
	}

	for _, memberID := range memberIDs {
		_, err := r.graph.Query(
			`MERGE (s:Memory {id: $summary})
			 MERGE (m:Memory {id: $member})
			 MERGE (s)-[:COMPACTED_FROM]->(m)`,
			map[string]interface{}{"summary": summaryID, "member": memberID},
			nil,
		)
		if err != nil {
			r.log.Warn().Err(err).Str("summary", summaryID).Str("member", memberID).
				Msg("failed to record compaction lineage edge")
			return fmt.Errorf("provenance: merge edge for member %s: %w", memberID, err)
		}
	}

	return nil
}

func (r *falkordbRecorder) Close() error {
	return r.conn.Close()
}
