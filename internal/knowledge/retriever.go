package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loganventer/loganventerprofile-sub000/internal/corpus"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
)

// Result is the record handed to the model for each retrieved chunk.
type Result struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

type RetrieverConfig struct {
	Chunks   []Chunk
	Index    *Index
	Expander *Expander
	HyDE     *HyDE
	Logger   logging.Logger
	TopN     int
}

// Retriever runs hybrid search: expanded-query BM25 fused with HyDE by RRF,
// with a keyword scan whenever the index is missing or finds nothing.
type Retriever struct {
	chunks   []Chunk
	byID     map[string]Chunk
	index    *Index
	expander *Expander
	hyde     *HyDE
	logger   logging.Logger
	topN     int
}

func NewRetriever(cfg RetrieverConfig) *Retriever {
	byID := make(map[string]Chunk, len(cfg.Chunks))
	for _, c := range cfg.Chunks {
		byID[c.ID] = c
	}
	topN := cfg.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Retriever{
		chunks:   cfg.Chunks,
		byID:     byID,
		index:    cfg.Index,
		expander: cfg.Expander,
		hyde:     cfg.HyDE,
		logger:   logger,
		topN:     topN,
	}
}

// Load assembles a Retriever from the artifacts in dir, or from the embedded
// corpus when dir is empty. A bad index leaves the retriever on the keyword
// path rather than failing.
func Load(dir string, hyde *HyDE, logger logging.Logger) (*Retriever, error) {
	cfg := RetrieverConfig{HyDE: hyde, Logger: logger}

	expander, err := DefaultExpander()
	if err != nil {
		logger.WithError(err).Warn("Query expansion disabled")
	}
	cfg.Expander = expander

	if dir != "" {
		chunks, ix, err := LoadArtifacts(dir)
		if err != nil {
			logger.WithError(err).WithField("dir", dir).Warn("Failed to load index artifacts")
		}
		cfg.Chunks, cfg.Index = chunks, ix
	}
	if len(cfg.Chunks) == 0 {
		p, err := corpus.Default()
		if err != nil {
			return nil, fmt.Errorf("load corpus: %w", err)
		}
		cfg.Chunks = BuildChunks(p)
		if dir == "" {
			cfg.Index = BuildIndex(cfg.Chunks)
		}
	}
	return NewRetriever(cfg), nil
}

// Chunks returns the chunk set in index order.
func (r *Retriever) Chunks() []Chunk {
	return r.chunks
}

// Indexed reports whether BM25 is available.
func (r *Retriever) Indexed() bool {
	return r.index != nil && r.index.DocCount > 0
}

// Search runs Retrieve and serializes the results as a JSON array.
func (r *Retriever) Search(ctx context.Context, query string) (string, error) {
	results := r.Retrieve(ctx, query)
	data, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("encode search results: %w", err)
	}
	return string(data), nil
}

// Retrieve returns at most topN results for query. It never fails; every
// error path degrades to the keyword scan.
func (r *Retriever) Retrieve(ctx context.Context, query string) []Result {
	start := time.Now()
	results, path := r.retrieve(ctx, query)

	searchQueriesTotal.WithLabelValues(path).Inc()
	searchDuration.Observe(time.Since(start).Seconds())
	searchResultsCount.Observe(float64(len(results)))
	r.logger.WithFields(logging.Fields{
		"path":     path,
		"results":  len(results),
		"duration": time.Since(start).String(),
	}).Debug("Knowledge search")
	return results
}

func (r *Retriever) retrieve(ctx context.Context, query string) ([]Result, string) {
	if !r.Indexed() {
		return r.fallback(query), "fallback"
	}

	expanded := query
	if r.expander != nil {
		expanded = r.expander.Expand(query)
	}
	lists := [][]Ranked{r.index.Score(expanded)}
	path := "bm25"
	if hyde := r.hyde.Rank(ctx, r.index, query); len(hyde) > 0 {
		lists = append(lists, hyde)
		path = "hybrid"
	}

	fused := Fuse(lists, defaultRRFK, r.topN)
	results := make([]Result, 0, len(fused))
	for _, item := range fused {
		if c, ok := r.byID[item.ID]; ok {
			results = append(results, Result{ID: c.ID, Topic: c.Topic, Content: c.Content})
		}
	}
	if len(results) == 0 {
		return r.fallback(query), "fallback"
	}
	return results, path
}

func (r *Retriever) fallback(query string) []Result {
	chunks := KeywordSearch(r.chunks, query, r.topN)
	out := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Result{ID: c.ID, Topic: c.Topic, Content: c.Content})
	}
	return out
}
