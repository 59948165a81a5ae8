package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for trust line adjustments.
type Metrics struct {
	Adjusted        prometheus.Counter
	Failed          prometheus.Counter
	AccountsCreated prometheus.Counter
	AdjustDuration  prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Adjusted: f.NewCounter(prometheus.CounterOpts{
			Name: "stellarbridge_trustlines_adjusted_total",
			Help: "Trust line changes accepted by the ledger",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Name: "stellarbridge_trustline_adjustments_failed_total",
			Help: "Trust line changes that failed",
		}),
		AccountsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "stellarbridge_ledger_accounts_created_total",
			Help: "Tenant accounts created and funded on the ledger",
		}),
		AdjustDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stellarbridge_trustline_adjust_duration_seconds",
			Help:    "Duration of Adjust calls including ledger round trips",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) IncrementAdjusted()        { m.Adjusted.Inc() }
func (m *Metrics) IncrementFailed()          { m.Failed.Inc() }
func (m *Metrics) IncrementAccountsCreated() { m.AccountsCreated.Inc() }

func (m *Metrics) ObserveAdjust(start time.Time) {
	m.AdjustDuration.Observe(time.Since(start).Seconds())
}
