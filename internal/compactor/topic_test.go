package compactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectTopic_MatchesKeyword(t *testing.T) {
	require.Equal(t, "memory_system", detectTopic("notes about vector embedding design"))
	require.Equal(t, "federation", detectTopic("set up an ssh tunnel for federation"))
	require.Equal(t, "automation", detectTopic("cron job for scheduled backup"))
}

func TestDetectTopic_NoMatchReturnsEmpty(t *testing.T) {
	require.Equal(t, "", detectTopic("nothing relevant here at all"))
}

func TestDetectTopic_PriorityOrderFirstMatchWins(t *testing.T) {
	require.Equal(t, "federation", detectTopic("federation tunnel also involves a server"))
}
