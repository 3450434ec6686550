// Package metrics exposes Prometheus instrumentation for collection runs and
// the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ledger"

// Connection outcomes recorded per tenant.
const (
	OutcomeConnected        = "connected"
	OutcomeAuthFailed       = "auth_failed"
	OutcomeUnreachable      = "unreachable"
	OutcomeCredentialFailed = "credential_failed"
)

// Recorder holds every metric the service exports.
type Recorder struct {
	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	LastRunTimestamp    prometheus.Gauge
	TenantConnections   *prometheus.CounterVec
	ExtractorOutcomes   *prometheus.CounterVec
	IndicatorsPersisted prometheus.Counter
	PersistErrors       prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the metrics on reg. Tests pass a fresh prometheus.NewRegistry.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Collection runs by result.",
		}, []string{"result"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full collection run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
		TenantConnections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_connections_total",
			Help:      "Tenant connection attempts by outcome.",
		}, []string{"outcome"}),
		ExtractorOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractor_results_total",
			Help:      "Indicator extraction results by indicator and status.",
		}, []string{"indicator", "status"}),
		IndicatorsPersisted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indicators_persisted_total",
			Help:      "Indicator rows written.",
		}),
		PersistErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Indicator rows that failed to write.",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(result string, started time.Time, finished time.Time) {
	if r == nil {
		return
	}
	r.RunsTotal.WithLabelValues(result).Inc()
	r.RunDuration.Observe(finished.Sub(started).Seconds())
	r.LastRunTimestamp.Set(float64(finished.Unix()))
}

// TenantConnection counts one tenant connection outcome.
func (r *Recorder) TenantConnection(outcome string) {
	if r == nil {
		return
	}
	r.TenantConnections.WithLabelValues(outcome).Inc()
}

// Extractor counts one extractor result.
func (r *Recorder) Extractor(indicator, status string) {
	if r == nil {
		return
	}
	r.ExtractorOutcomes.WithLabelValues(indicator, status).Inc()
}

// Persisted counts written and failed rows.
func (r *Recorder) Persisted(ok, failed int) {
	if r == nil {
		return
	}
	r.IndicatorsPersisted.Add(float64(ok))
	r.PersistErrors.Add(float64(failed))
}
