package tools

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "tool_calls_total",
			Help:      "Tool executions by provider and outcome",
		},
		[]string{"provider", "tool", "outcome"}, // "ok", "error"
	)

	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool executions in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	providersAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "concierge",
			Name:      "tool_provider_available",
			Help:      "Whether a tool provider is contributing tools (1) or not (0)",
		},
		[]string{"provider"},
	)
)

var mcpCallsRejected = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "concierge",
		Name:      "mcp_calls_rejected_total",
		Help:      "MCP tool calls refused by the quota gate",
	},
)
