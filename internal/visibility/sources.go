package visibility

import "sort"

// Source is a cited web page.
type Source struct {
	ID   int64
	Link string
}

// SourceUsage is one link with how often responses cited it.
type SourceUsage struct {
	Link       string `json:"link"`
	UsageCount int    `json:"usage_count"`
	UsagePct   int    `json:"usage_percentage"`
}

// SourcesUsage counts source references across responses, merges sources
// sharing a link and sorts by count descending. Percentages are over all
// references, including ones whose source row is missing.
func SourcesUsage(responses []Response, sources []Source) []SourceUsage {
	counts := make(map[int64]int)
	total := 0
	for _, r := range responses {
		for _, id := range r.SourceIDs {
			counts[id]++
			total++
		}
	}
	if total == 0 {
		return nil
	}

	byLink := make(map[string]int)
	var order []string
	for _, s := range sources {
		if _, seen := byLink[s.Link]; !seen {
			order = append(order, s.Link)
		}
		byLink[s.Link] += counts[s.ID]
	}

	out := make([]SourceUsage, 0, len(order))
	for _, link := range order {
		n := byLink[link]
		out = append(out, SourceUsage{Link: link, UsageCount: n, UsagePct: Percent(n, total)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UsageCount > out[j].UsageCount })
	return out
}
