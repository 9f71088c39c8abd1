package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	operationTotal    *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec

	activeSessions       prometheus.Gauge
	openDocuments        prometheus.Gauge
	cachedBytes          prometheus.Gauge
	commitsTotal         prometheus.Counter
	documentLoadDuration prometheus.Histogram
	documentSaveDuration prometheus.Histogram

	lockWaitDuration *prometheus.HistogramVec
	lockTimeouts     *prometheus.CounterVec
	evictionsTotal   *prometheus.CounterVec
	externalChanges  prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			operationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docmcp_operation_total",
					Help: "Total dispatched operations by name and status.",
				},
				[]string{"operation", "status"},
			),
			operationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "docmcp_operation_duration_seconds",
					Help:    "Operation execution duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"operation"},
			),
			operationErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docmcp_operation_errors_total",
					Help: "Total failed operations by name and error kind.",
				},
				[]string{"operation", "kind"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "docmcp_active_sessions",
					Help: "Current number of caller sessions holding documents.",
				},
			),
			openDocuments: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "docmcp_open_documents",
					Help: "Current number of cached document handles.",
				},
			),
			cachedBytes: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "docmcp_cached_bytes",
					Help: "Estimated in-memory size of cached documents in bytes.",
				},
			),
			commitsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "docmcp_commits_total",
					Help: "Total session document commits.",
				},
			),
			documentLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "docmcp_document_load_duration_seconds",
					Help:    "Document load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			documentSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "docmcp_document_save_duration_seconds",
					Help:    "Document save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			lockWaitDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "docmcp_lock_wait_seconds",
					Help:    "Time spent waiting for a document lock by mode.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"mode"},
			),
			lockTimeouts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docmcp_lock_timeouts_total",
					Help: "Total lock acquisitions that timed out by mode.",
				},
				[]string{"mode"},
			),
			evictionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docmcp_evictions_total",
					Help: "Total evicted document handles by reason.",
				},
				[]string{"reason"},
			),
			externalChanges: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "docmcp_external_changes_total",
					Help: "Total external modifications detected on cached documents.",
				},
			),
		}

		prometheus.MustRegister(
			m.operationTotal,
			m.operationDuration,
			m.operationErrors,
			m.activeSessions,
			m.openDocuments,
			m.cachedBytes,
			m.commitsTotal,
			m.documentLoadDuration,
			m.documentSaveDuration,
			m.lockWaitDuration,
			m.lockTimeouts,
			m.evictionsTotal,
			m.externalChanges,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordOperation(operation string, duration time.Duration, errKind string) {
	m := getMetrics()
	status := "success"
	if errKind != "" {
		status = "error"
		m.operationErrors.WithLabelValues(operation, errKind).Inc()
	}
	m.operationTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func SetOpenDocuments(count int) {
	m := getMetrics()
	m.openDocuments.Set(float64(count))
}

func SetCachedBytes(n int64) {
	m := getMetrics()
	m.cachedBytes.Set(float64(n))
}

func RecordCommit() {
	m := getMetrics()
	m.commitsTotal.Inc()
}

func RecordDocumentLoad(duration time.Duration) {
	m := getMetrics()
	m.documentLoadDuration.Observe(duration.Seconds())
}

func RecordDocumentSave(duration time.Duration) {
	m := getMetrics()
	m.documentSaveDuration.Observe(duration.Seconds())
}

func RecordLockWait(mode string, duration time.Duration, acquired bool) {
	m := getMetrics()
	m.lockWaitDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if !acquired {
		m.lockTimeouts.WithLabelValues(mode).Inc()
	}
}

func RecordEviction(reason string) {
	m := getMetrics()
	m.evictionsTotal.WithLabelValues(reason).Inc()
}

func RecordExternalChange() {
	m := getMetrics()
	m.externalChanges.Inc()
}
