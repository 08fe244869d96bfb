package ml

import (
	"sort"
)

// FeatureStats is the gain-based importance of one model input.
type FeatureStats struct {
	Name            string  `json:"name"`
	ImportanceScore float64 `json:"importance_score"`
	TotalGain       float64 `json:"total_gain"`
	SplitCount      int     `json:"split_count"`
	Rank            int     `json:"rank"`
}

// ComputeImportance ranks features by their share of the booster's total
// split gain. Ties are broken by name.
func ComputeImportance(b *Booster, names []string) []FeatureStats {
	gains := b.Gains()
	counts := make([]int, b.NumFeatures)
	for _, t := range b.Trees {
		for _, node := range t.Nodes {
			if !node.IsLeaf() && node.Feature < len(counts) {
				counts[node.Feature]++
			}
		}
	}

	var total float64
	for _, g := range gains {
		total += g
	}

	stats := make([]FeatureStats, 0, len(names))
	for i, name := range names {
		s := FeatureStats{Name: name}
		if i < len(gains) {
			s.TotalGain = gains[i]
			s.SplitCount = counts[i]
			if total > 0 {
				s.ImportanceScore = gains[i] / total
			}
		}
		stats = append(stats, s)
	}

	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].ImportanceScore != stats[j].ImportanceScore {
			return stats[i].ImportanceScore > stats[j].ImportanceScore
		}
		return stats[i].Name < stats[j].Name
	})
	for i := range stats {
		stats[i].Rank = i + 1
	}
	return stats
}

// TopFeatures returns up to n of the highest ranked features.
func TopFeatures(stats []FeatureStats, n int) []FeatureStats {
	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}
