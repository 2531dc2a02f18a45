package sources

import (
	"sort"

	"personal-rag/internal/models"
)

// DefaultMax is how many citation links a response carries.
const DefaultMax = 2

// Select returns up to max distinct links found in results. With rank set the
// most relevant results are considered first, otherwise retrieval order is kept.
func Select(results []models.SearchResult, max int, rank bool) []string {
	if max <= 0 {
		max = DefaultMax
	}
	ordered := make([]models.SearchResult, len(results))
	copy(ordered, results)
	if rank {
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })
	}

	seen := make(map[string]bool)
	var links []string
	for _, r := range ordered {
		link, ok := ExtractURLStrict(r.Content)
		if !ok || seen[link] {
			continue
		}
		seen[link] = true
		links = append(links, link)
		if len(links) == max {
			break
		}
	}
	return links
}

// Filenames returns the distinct filenames of results in order.
func Filenames(results []models.SearchResult) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range results {
		if r.Filename == "" || seen[r.Filename] {
			continue
		}
		seen[r.Filename] = true
		names = append(names, r.Filename)
	}
	return names
}
