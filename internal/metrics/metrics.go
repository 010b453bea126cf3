// Package metrics exports increment outcomes and latency to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	increments *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func New(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		increments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "viewcounter",
			Name:      "increments_total",
			Help:      "Increment invocations by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "viewcounter",
			Name:      "increment_duration_seconds",
			Help:      "Duration of increment invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"outcome"}),
	}

	r.MustRegister(m.increments, m.duration)
	return m
}

// Observe is a no-op on a nil *Metrics.
func (m *Metrics) Observe(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.increments.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
}
