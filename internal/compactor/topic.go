package compactor

import "strings"

// topicGroup pairs a fixed keyword set with the topic name assigned when
// any keyword appears in a record's text.
type topicGroup struct {
	keywords []string
	name     string
}

// topicTaxonomy is the fixed, priority-ordered keyword taxonomy used to
// bucket compaction candidates lacking a clearer collection-level grouping.
var topicTaxonomy = []topicGroup{
	{[]string{"federation", "ssh", "tunnel"}, "federation"},
	{[]string{"memory", "vector", "embedding"}, "memory_system"},
	{[]string{"wifi", "network", "driver"}, "network"},
	{[]string{"server", "hardware"}, "hardware"},
	{[]string{"agent", "skill", "framework"}, "agent_framework"},
	{[]string{"dalio", "world order"}, "dalio"},
	{[]string{"cron", "backup", "scheduled"}, "automation"},
}

// detectTopic returns the first matching topic name for text, or "" if
// none of the taxonomy's keyword sets match.
func detectTopic(text string) string {
	lower := strings.ToLower(text)
	for _, g := range topicTaxonomy {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				return g.name
			}
		}
	}
	return ""
}
