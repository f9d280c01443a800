package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "llm_calls_total",
			Help:      "Total chat LLM calls",
		},
		[]string{"status"}, // "success", "error"
	)

	llmDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "llm_duration_seconds",
			Help:      "Duration of chat LLM calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
	)

	chatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome",
		},
		[]string{"outcome"}, // "ok", "filtered", "error", "demo_limit"
	)

	toolRoundsHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "tool_rounds",
			Help:      "Tool-use rounds per chat turn",
			Buckets:   []float64{0, 1, 2, 3, 4},
		},
	)
)
