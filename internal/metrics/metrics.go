// Package metrics exposes Prometheus metrics for dispatches and the
// HTTP API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for mailkite.
type Metrics struct {
	EmailsSentTotal   prometheus.Counter
	EmailsFailedTotal prometheus.Counter

	DispatchesTotal         *prometheus.CounterVec
	DispatchDurationSeconds prometheus.Histogram

	HTTPRequestsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailkite_emails_sent_total",
			Help: "Total number of successfully submitted emails",
		}),
		EmailsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailkite_emails_failed_total",
			Help: "Total number of emails that failed submission",
		}),
		DispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailkite_dispatches_total",
			Help: "Total campaign dispatches by terminal status",
		}, []string{"status"}),
		DispatchDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailkite_dispatch_duration_seconds",
			Help:    "Duration of campaign dispatches",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailkite_http_requests_total",
			Help: "Total HTTP requests by method, path and status",
		}, []string{"method", "path", "status"}),
		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.DispatchesTotal,
		m.DispatchDurationSeconds,
		m.HTTPRequestsTotal,
	)

	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
