package knowledge

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// DocStats holds the per-document statistics BM25 needs.
type DocStats struct {
	Len int            `json:"len"`
	TF  map[string]int `json:"tf"`
}

// Index is a read-only BM25 index. Order records insertion order and breaks
// score ties.
type Index struct {
	AvgDl    float64             `json:"avgDl"`
	DocCount int                 `json:"docCount"`
	Docs     map[string]DocStats `json:"docs"`
	IDF      map[string]float64  `json:"idf"`
	Order    []string            `json:"order"`
}

// Ranked is one scored document. Lists are sorted by descending Score.
type Ranked struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// BuildIndex tokenizes every chunk and derives BM25 statistics.
func BuildIndex(chunks []Chunk) *Index {
	ix := &Index{
		Docs:  make(map[string]DocStats, len(chunks)),
		IDF:   make(map[string]float64),
		Order: make([]string, 0, len(chunks)),
	}
	df := make(map[string]int)
	total := 0
	for _, c := range chunks {
		tokens := Tokenize(c.Topic + " " + c.Content)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			df[t]++
		}
		ix.Docs[c.ID] = DocStats{Len: len(tokens), TF: tf}
		ix.Order = append(ix.Order, c.ID)
		total += len(tokens)
	}
	ix.DocCount = len(ix.Docs)
	if ix.DocCount > 0 {
		ix.AvgDl = float64(total) / float64(ix.DocCount)
	}
	n := float64(ix.DocCount)
	for t, d := range df {
		ix.IDF[t] = math.Log((n-float64(d)+0.5)/(float64(d)+0.5) + 1)
	}
	return ix
}

var errEmptyIndex = errors.New("index has no documents")

// Validate checks the structural invariants of a loaded index and prepares it
// for scoring. An index without a usable Order falls back to sorted ids.
func (ix *Index) Validate() error {
	if ix == nil || ix.DocCount == 0 {
		return errEmptyIndex
	}
	if ix.DocCount != len(ix.Docs) {
		return fmt.Errorf("docCount %d does not match %d docs", ix.DocCount, len(ix.Docs))
	}
	if ix.AvgDl <= 0 {
		return fmt.Errorf("avgDl must be positive, got %v", ix.AvgDl)
	}
	for id, doc := range ix.Docs {
		for t := range doc.TF {
			if _, ok := ix.IDF[t]; !ok {
				return fmt.Errorf("term %q in doc %s has no idf", t, id)
			}
		}
	}
	if len(ix.Order) != len(ix.Docs) {
		ix.Order = make([]string, 0, len(ix.Docs))
		for id := range ix.Docs {
			ix.Order = append(ix.Order, id)
		}
		sort.Strings(ix.Order)
	}
	return nil
}

// Score tokenizes query and ranks every document with a positive score.
func (ix *Index) Score(query string) []Ranked {
	return ix.ScoreTokens(Tokenize(query))
}

// ScoreTokens ranks documents against already-normalized terms. Repeated terms
// count once.
func (ix *Index) ScoreTokens(terms []string) []Ranked {
	if ix == nil || len(terms) == 0 || ix.DocCount == 0 {
		return nil
	}
	seen := make(map[string]bool, len(terms))
	unique := terms[:0:0]
	for _, t := range terms {
		if _, ok := ix.IDF[t]; ok && !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}
	if len(unique) == 0 {
		return nil
	}

	var out []Ranked
	for _, id := range ix.Order {
		doc := ix.Docs[id]
		norm := bm25K1 * (1 - bm25B + bm25B*float64(doc.Len)/ix.AvgDl)
		score := 0.0
		for _, t := range unique {
			tf := float64(doc.TF[t])
			if tf == 0 {
				continue
			}
			score += ix.IDF[t] * tf * (bm25K1 + 1) / (tf + norm)
		}
		if score > 0 {
			out = append(out, Ranked{ID: id, Score: score})
		}
	}
	// out is in insertion order, so a stable sort keeps ties in that order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
