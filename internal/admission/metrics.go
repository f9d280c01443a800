package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "admission_actions_total",
			Help:      "Admission actions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	tokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "tokens_issued_total",
			Help:      "Access tokens minted, by path",
		},
		[]string{"path"}, // "auto", "approved"
	)
)
