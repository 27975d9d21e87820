package workspace

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// MatchProjects ranks index entries against a free-text query. Exact
// tag and name matches dominate, then prefix, then substring; entries
// scoring zero fall through to fuzzy ranking over project names so a
// typo'd query still surfaces candidates. Returns at most limit
// entries, best first.
func MatchProjects(entries []ProjectEntry, query string, limit int) []ProjectEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || limit <= 0 {
		return nil
	}

	type scored struct {
		entry ProjectEntry
		score int
	}
	var ranked []scored
	for _, entry := range entries {
		tag := strings.ToLower(entry.ProjectTag)
		name := strings.ToLower(entry.ProjectName)
		score := 0
		if tag == q {
			score += 100
		}
		if name == q {
			score += 90
		}
		if strings.HasPrefix(tag, q) {
			score += 60
		}
		if strings.HasPrefix(name, q) {
			score += 50
		}
		if strings.Contains(tag, q) {
			score += 30
		}
		if strings.Contains(name, q) {
			score += 20
		}
		if score > 0 {
			ranked = append(ranked, scored{entry, score})
		}
	}

	if len(ranked) == 0 {
		return fuzzyMatch(entries, q, limit)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	result := make([]ProjectEntry, len(ranked))
	for i, item := range ranked {
		result[i] = item.entry
	}
	return result
}

func fuzzyMatch(entries []ProjectEntry, query string, limit int) []ProjectEntry {
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.ProjectName
	}
	matches := fuzzy.Find(query, names)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	result := make([]ProjectEntry, len(matches))
	for i, m := range matches {
		result[i] = entries[m.Index]
	}
	return result
}
