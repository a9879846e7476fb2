package domain

import "sort"

// Group is a read-only aggregate over downloads sharing a group key.
// It is computed on demand and never stored.
type Group struct {
	Key       string  `json:"key"`
	Total     int     `json:"total"`
	Active    int     `json:"active"`
	Pending   int     `json:"pending"`
	Paused    int     `json:"paused"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Cancelled int     `json:"cancelled"`
	Progress  float64 `json:"progress"`
}

// BuildGroups aggregates downloads by Metadata.GroupKey, sorted by key.
func BuildGroups(downloads []*Download) []Group {
	byKey := make(map[string]*Group)
	sums := make(map[string]float64)

	for _, d := range downloads {
		key := d.Metadata.GroupKey()
		g, ok := byKey[key]
		if !ok {
			g = &Group{Key: key}
			byKey[key] = g
		}
		g.Total++
		switch d.Status {
		case StatusDownloading:
			g.Active++
		case StatusPending:
			g.Pending++
		case StatusPaused:
			g.Paused++
		case StatusCompleted:
			g.Completed++
		case StatusFailed:
			g.Failed++
		case StatusCancelled:
			g.Cancelled++
		}
		sums[key] += d.Progress()
	}

	groups := make([]Group, 0, len(byKey))
	for key, g := range byKey {
		g.Progress = sums[key] / float64(g.Total)
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}
