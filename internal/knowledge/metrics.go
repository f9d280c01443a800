package knowledge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "search_queries_total",
			Help:      "Total knowledge searches by the path that produced the results",
		},
		[]string{"path"}, // "bm25", "hybrid", "fallback"
	)

	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "search_duration_seconds",
			Help:      "Duration of knowledge search operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	searchResultsCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "search_results_count",
			Help:      "Number of results returned per knowledge search",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
	)

	hydeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "hyde_calls_total",
			Help:      "Hypothetical-answer generations by outcome",
		},
		[]string{"outcome"}, // "ok", "empty", "timeout", "error", "disabled"
	)

	hydeCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "hyde_cache_total",
			Help:      "Hypothetical-answer cache lookups",
		},
		[]string{"result"}, // "hit", "miss"
	)
)
