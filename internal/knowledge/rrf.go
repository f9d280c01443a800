package knowledge

import "sort"

const (
	defaultRRFK = 60
	defaultTopN = 5
)

// Fuse merges ranked lists by reciprocal rank. Only positions matter: the
// document at 0-indexed rank r in a list contributes 1/(k+r+1). Ties keep the
// order in which documents were first seen. k <= 0 and topN <= 0 select the
// defaults of 60 and 5.
func Fuse(lists [][]Ranked, k, topN int) []Ranked {
	if k <= 0 {
		k = defaultRRFK
	}
	if topN <= 0 {
		topN = defaultTopN
	}

	scores := make(map[string]float64)
	var order []string
	for _, list := range lists {
		for r, item := range list {
			if _, ok := scores[item.ID]; !ok {
				order = append(order, item.ID)
			}
			scores[item.ID] += 1 / float64(k+r+1)
		}
	}

	out := make([]Ranked, 0, len(order))
	for _, id := range order {
		out = append(out, Ranked{ID: id, Score: scores[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
