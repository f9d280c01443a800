package frontdoor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rejectedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "concierge",
		Name:      "rate_limited_total",
		Help:      "Chat and MCP requests rejected by the per-IP rate gate",
	},
)
