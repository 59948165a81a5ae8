package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for address resolution.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	LookupFailures prometheus.Counter
	LookupDuration prometheus.Histogram
}

// New registers the federation metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "stellarbridge_federation_cache_hits_total",
			Help: "Resolutions served from cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "stellarbridge_federation_cache_misses_total",
			Help: "Resolutions that required a federation lookup",
		}),
		LookupFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "stellarbridge_federation_lookup_failures_total",
			Help: "Federation lookups that failed",
		}),
		LookupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stellarbridge_federation_lookup_duration_seconds",
			Help:    "Duration of stellar.toml plus federation server round trips",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

func (m *Metrics) ObserveLookup(start time.Time) {
	m.LookupDuration.Observe(time.Since(start).Seconds())
}
