package knowledge

import (
	"sort"
	"strings"
)

// categoryHints route common question words to a chunk category.
var categoryHints = map[string]string{
	"about":      CategoryAbout,
	"who":        CategoryAbout,
	"bio":        CategoryAbout,
	"project":    CategoryProject,
	"projects":   CategoryProject,
	"built":      CategoryProject,
	"job":        CategoryExperience,
	"work":       CategoryExperience,
	"experience": CategoryExperience,
	"company":    CategoryExperience,
	"skills":     CategorySkills,
	"skill":      CategorySkills,
	"languages":  CategorySkills,
	"stack":      CategoryPortfolio,
	"education":  CategoryEducation,
	"degree":     CategoryEducation,
	"university": CategoryEducation,
	"hobbies":    CategoryInterests,
	"interests":  CategoryInterests,
	"music":      CategoryInterests,
	"website":    CategoryPortfolio,
	"site":       CategoryPortfolio,
	"portfolio":  CategoryPortfolio,
}

// KeywordSearch scores chunks by plain substring hits on topic and content
// plus category hints. It needs no index and always returns at least the
// about chunk when one exists.
func KeywordSearch(chunks []Chunk, query string, topN int) []Chunk {
	if topN <= 0 {
		topN = defaultTopN
	}
	words := strings.Fields(normalize(query))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".-")
		if len(w) >= 2 && !isStopword(w) {
			terms = append(terms, w)
		}
	}

	type hit struct {
		idx   int
		score int
	}
	var hits []hit
	for i, c := range chunks {
		topic := strings.ToLower(c.Topic)
		content := strings.ToLower(c.Content)
		score := 0
		for _, t := range terms {
			if strings.Contains(topic, t) {
				score += 3
			}
			if strings.Contains(content, t) {
				score++
			}
			if categoryHints[t] == c.Category {
				score += 2
			}
		}
		if score > 0 {
			hits = append(hits, hit{idx: i, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	out := make([]Chunk, 0, topN)
	for _, h := range hits {
		if len(out) == topN {
			break
		}
		out = append(out, chunks[h.idx])
	}
	if len(out) == 0 {
		for _, c := range chunks {
			if c.Category == CategoryAbout {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
