package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for payment submission.
type Metrics struct {
	Outcomes      *prometheus.CounterVec
	Attempts      prometheus.Histogram
	SendDuration  prometheus.Histogram
	QueueDepth    prometheus.Gauge
	QueueRejected prometheus.Counter
	Recovered     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stellarbridge_payments_total",
			Help: "Payments reaching a terminal state, by status",
		}, []string{"status"}),
		Attempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stellarbridge_payment_submission_attempts",
			Help:    "Ledger submission attempts per payment",
			Buckets: []float64{1, 2, 3, 4, 6, 8},
		}),
		SendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stellarbridge_payment_send_duration_seconds",
			Help:    "Time from send to terminal state",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "stellarbridge_payment_queue_depth",
			Help: "Payments waiting for a worker",
		}),
		QueueRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "stellarbridge_payment_queue_rejected_total",
			Help: "Payments refused because the queue was full",
		}),
		Recovered: f.NewCounter(prometheus.CounterOpts{
			Name: "stellarbridge_payments_recovered_total",
			Help: "Unfinished payments re-enqueued at start",
		}),
	}
}

func (m *Metrics) ObserveOutcome(status string, attempts int, start time.Time) {
	m.Outcomes.WithLabelValues(status).Inc()
	if attempts > 0 {
		m.Attempts.Observe(float64(attempts))
	}
	m.SendDuration.Observe(time.Since(start).Seconds())
}
