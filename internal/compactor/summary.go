package compactor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/engramhq/engram/internal/recordstore"
)

const (
	maxExcerptChars     = 200
	maxSummaryKeyPoints = 5
)

// buildSummary renders an extractive [COMPACTED SUMMARY] text for a group:
// a header with the date range and original count, up to the top 5
// highest-importance members as truncated excerpts, and a closing footer.
func buildSummary(groupKey string, members []recordstore.Record) string {
	sorted := make([]recordstore.Record, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Importance > sorted[j].Importance
	})

	minTS, maxTS := sorted[0].Timestamp, sorted[0].Timestamp
	for _, m := range sorted {
		if m.Timestamp < minTS {
			minTS = m.Timestamp
		}
		if m.Timestamp > maxTS {
			maxTS = m.Timestamp
		}
	}
	startDate := time.Unix(minTS, 0).UTC().Format("2006-01-02")
	endDate := time.Unix(maxTS, 0).UTC().Format("2006-01-02")
	dateRange := startDate
	if startDate != endDate {
		dateRange = startDate + " to " + endDate
	}

	collection := groupKey
	if idx := strings.Index(groupKey, "_"); idx >= 0 {
		collection = groupKey[:idx]
	}

	top := sorted
	if len(top) > maxSummaryKeyPoints {
		top = top[:maxSummaryKeyPoints]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[COMPACTED SUMMARY] %s from %s\n", titleCase(collection), dateRange)
	fmt.Fprintf(&b, "Original memories: %d\n\n", len(members))
	b.WriteString("Key points:\n")
	for _, m := range top {
		b.WriteString("- ")
		b.WriteString(excerpt(m.Text))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n[This summary replaces %d individual memories to save space]", len(members))

	return b.String()
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= maxExcerptChars {
		return text
	}
	return string(runes[:maxExcerptChars]) + "..."
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
