package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRelativeDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"5m": 5 * time.Minute,
		"2h": 2 * time.Hour,
		"3d": 3 * 24 * time.Hour,
		"1w": 7 * 24 * time.Hour,
	}
	for in, want := range cases {
		d, ok := parseRelativeDuration(in)
		require.True(t, ok, in)
		require.Equal(t, want, d, in)
	}

	_, ok := parseRelativeDuration("bogus")
	require.False(t, ok)
}

func TestResolveFilter_LegacyTakesPrecedenceOverFiltersMap(t *testing.T) {
	now := time.Now()
	opts := Options{
		Collection: "legacy",
		Filters:    map[string]string{"collection": "from-map"},
	}
	f := resolveFilter(opts, now)
	require.Equal(t, "legacy", f.Collection)
}

func TestResolveFilter_FallsBackToFiltersMap(t *testing.T) {
	now := time.Now()
	opts := Options{
		Filters: map[string]string{
			"collection":     "notes",
			"min_importance": "0.5",
			"source":         "agent-a",
			"tags":           "a,b",
		},
	}
	f := resolveFilter(opts, now)
	require.Equal(t, "notes", f.Collection)
	require.NotNil(t, f.MinImportance)
	require.InDelta(t, 0.5, *f.MinImportance, 0.0001)
	require.Equal(t, "agent-a", f.Source)
	require.Equal(t, []string{"a", "b"}, f.Tags)
}

func TestResolveFilter_MinImportanceZeroIsApplied(t *testing.T) {
	zero := 0.0
	opts := Options{MinImportance: &zero}
	f := resolveFilter(opts, time.Now())
	require.NotNil(t, f.MinImportance)
	require.Equal(t, 0.0, *f.MinImportance)
}

func TestResolveFilter_SinceRelativeDuration(t *testing.T) {
	now := time.Now()
	opts := Options{Filters: map[string]string{"since": "1d"}}
	f := resolveFilter(opts, now)
	require.NotNil(t, f.Since)
	require.WithinDuration(t, now.Add(-24*time.Hour), *f.Since, time.Second)
}
