package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry module.
type Metrics struct {
	BridgesCreated prometheus.Counter
	BridgesDeleted prometheus.Counter
	BridgesActive  prometheus.Gauge
	CreateDuration prometheus.Histogram
}

// New creates the registry metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BridgesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "stellarbridge_bridges_created_total",
			Help: "Total number of bridge configurations created",
		}),
		BridgesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "stellarbridge_bridges_deleted_total",
			Help: "Total number of bridge configurations deleted",
		}),
		BridgesActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "stellarbridge_bridges_active",
			Help: "Number of tenants currently bound to a ledger account",
		}),
		CreateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stellarbridge_bridge_create_duration_seconds",
			Help:    "Duration of Create operations including key hashing",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.BridgesCreated.Inc()
}

func (m *Metrics) IncrementDeleted() {
	m.BridgesDeleted.Inc()
}

func (m *Metrics) SetActive(n int) {
	m.BridgesActive.Set(float64(n))
}

// ObserveCreate records the duration of a Create call started at start.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}
