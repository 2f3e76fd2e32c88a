package provenance

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewRecorder_EmptyAddrReturnsNoop(t *testing.T) {
	r, err := NewRecorder("", zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, noopRecorder{}, r)
}

func TestNoopRecorder_RecordCompactionIsSafeNoop(t *testing.T) {
	r := noopRecorder{}
	require.NoError(t, r.RecordCompaction(context.Background(), "summary-1", []string{"a", "b"}))
	require.NoError(t, r.Close())
}
