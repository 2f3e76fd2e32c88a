package compactor

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/engramhq/engram/internal/recordstore"
)

func TestBuildSummary_IncludesHeaderAndFooter(t *testing.T) {
	now := time.Now().Unix()
	members := []recordstore.Record{
		{ID: "a", Text: "first memory", Importance: 0.5, Timestamp: now},
		{ID: "b", Text: "second memory", Importance: 0.9, Timestamp: now},
	}
	summary := buildSummary("knowledge_hardware", members)

	require.True(t, strings.HasPrefix(summary, "[COMPACTED SUMMARY] Hardware"))
	require.Contains(t, summary, "Original memories: 2")
	require.Contains(t, summary, "this summary replaces 2 individual memories to save space]")
	require.Contains(t, summary, "second memory")
}

func TestBuildSummary_OrdersByImportanceDescending(t *testing.T) {
	now := time.Now().Unix()
	members := []recordstore.Record{
		{ID: "low", Text: "low importance text", Importance: 0.1, Timestamp: now},
		{ID: "high", Text: "high importance text", Importance: 0.9, Timestamp: now},
	}
	summary := buildSummary("knowledge_x", members)

	require.Less(t, strings.Index(summary, "high importance text"), strings.Index(summary, "low importance text"))
}

func TestBuildSummary_TruncatesLongExcerpts(t *testing.T) {
	long := strings.Repeat("x", 500)
	members := []recordstore.Record{{ID: "a", Text: long, Importance: 0.5, Timestamp: time.Now().Unix()}}
	summary := buildSummary("knowledge_x", members)

	require.Contains(t, summary, strings.Repeat("x", maxExcerptChars)+"...")
	require.NotContains(t, summary, long)
}

func TestBuildSummary_CapsAtFiveKeyPoints(t *testing.T) {
	now := time.Now().Unix()
	var members []recordstore.Record
	for i := 0; i < 8; i++ {
		members = append(members, recordstore.Record{ID: string(rune('a' + i)), Text: "memory text", Importance: 0.5, Timestamp: now})
	}
	summary := buildSummary("knowledge_x", members)
	require.Equal(t, maxSummaryKeyPoints, strings.Count(summary, "- memory text"))
}
