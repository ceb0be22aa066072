// Package metrics exports Prometheus counters for the import pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "immport"

// Metrics holds all pipeline Prometheus metrics.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ItemsTotal     *prometheus.CounterVec
	AlbumsTotal    *prometheus.CounterVec
	JobsTotal      *prometheus.CounterVec
	RetriesTotal   *prometheus.CounterVec
	BytesUploaded  prometheus.Counter
	ItemDuration   prometheus.Histogram
	ActiveJobs     prometheus.Gauge
	CollectorFails prometheus.Counter
}

// New registers the pipeline metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items that reached an outcome, by status",
		}, []string{"status"}),
		AlbumsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "albums_total",
			Help:      "Albums that reached an outcome, by status",
		}, []string{"status"}),
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Pipeline runs that ended, by final job status",
		}, []string{"status"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried download and upload attempts",
		}, []string{"op"}),
		BytesUploaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes uploaded to the target service",
		}),
		ItemDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_duration_seconds",
			Help:      "Time to process a single item",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Pipeline runs in progress",
		}),
		CollectorFails: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_failures_total",
			Help:      "Album links the source collector could not resolve",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Item records an item outcome.
func (m *Metrics) Item(status string, took time.Duration, uploaded int64) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(status).Inc()
	m.ItemDuration.Observe(took.Seconds())
	if uploaded > 0 {
		m.BytesUploaded.Add(float64(uploaded))
	}
}

// Album records an album outcome.
func (m *Metrics) Album(status string) {
	if m == nil {
		return
	}
	m.AlbumsTotal.WithLabelValues(status).Inc()
}

// CollectorFailed records an album link that could not be resolved.
func (m *Metrics) CollectorFailed() {
	if m == nil {
		return
	}
	m.CollectorFails.Inc()
}

// Retry records a retried attempt of op.
func (m *Metrics) Retry(op string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(op).Inc()
}

// JobStarted marks a pipeline run as active.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.ActiveJobs.Inc()
}

// JobFinished records the final status of a run.
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.ActiveJobs.Dec()
	m.JobsTotal.WithLabelValues(status).Inc()
}
