package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for vault issuance.
type Metrics struct {
	Adjustments        prometheus.Counter
	PartialAdjustments prometheus.Counter
	AdjustDuration     prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Adjustments: f.NewCounter(prometheus.CounterOpts{
			Name: "stellarbridge_vault_adjustments_total",
			Help: "Vault issuance adjustments that reached the ledger",
		}),
		PartialAdjustments: f.NewCounter(prometheus.CounterOpts{
			Name: "stellarbridge_vault_partial_adjustments_total",
			Help: "Vault adjustments whose achieved amount differs from the requested amount",
		}),
		AdjustDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stellarbridge_vault_adjust_duration_seconds",
			Help:    "Duration of vault adjustments including ledger round trips",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}
