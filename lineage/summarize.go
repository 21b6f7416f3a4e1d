package lineage

import "sort"

// Count is a consensus lineage with the number of hashes supporting it.
type Count struct {
	Lineage Lineage
	Count   int
}

// CountLCA computes each hash's own consensus lineage (the LCA of all its
// assignments) and aggregates how many hashes support each consensus.
// Hashes with no assignments are skipped. Results are sorted by descending
// count, ties by lineage string ascending; callers apply their own
// minimum-count threshold.
func CountLCA(assignments map[uint64][]Lineage) []Count {
	counts := make(map[string]*Count)
	for _, lins := range assignments {
		if len(lins) == 0 {
			continue
		}
		lca, _ := FindLCA(BuildTree(lins))
		key := lca.String()
		if c, ok := counts[key]; ok {
			c.Count++
		} else {
			counts[key] = &Count{Lineage: lca, Count: 1}
		}
	}

	out := make([]Count, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Lineage.String() < out[j].Lineage.String()
	})
	return out
}

// SummarizeAtRanks expands each consensus up the ladder: a hash supporting
// "a;b;c" also supports "a;b" and "a". The result maps each prefix string
// to its total supporting hash count, for rank-by-rank summaries.
func SummarizeAtRanks(assignments map[uint64][]Lineage) []Count {
	totals := make(map[string]*Count)
	for _, lins := range assignments {
		if len(lins) == 0 {
			continue
		}
		lca, _ := FindLCA(BuildTree(lins))
		for end := len(lca); end > 0; end-- {
			prefix := lca[:end]
			key := prefix.String()
			if c, ok := totals[key]; ok {
				c.Count++
			} else {
				totals[key] = &Count{Lineage: append(Lineage(nil), prefix...), Count: 1}
			}
		}
	}

	out := make([]Count, 0, len(totals))
	for _, c := range totals {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Lineage.String() < out[j].Lineage.String()
	})
	return out
}
