// Package metrics exposes Prometheus instruments for the queue processor.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ga_queue"

// Metrics groups every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal        *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	rowsLoaded       *prometheus.CounterVec
	activeBatches    *prometheus.GaugeVec
	downloadRetries  *prometheus.CounterVec
	pagesDownloaded  *prometheus.CounterVec
	logEventsWritten *prometheus.CounterVec
	jobsEnqueued     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// New registers all instruments on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Jobs that reached a terminal status",
		}, []string{"kind", "status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from decode to status update per job",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		}, []string{"kind"}),
		rowsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Rows bulk-loaded into sink tables",
		}, []string{"table"}),
		activeBatches: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_batches",
			Help:      "Batches currently running",
		}, []string{"kind"}),
		downloadRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_retries_total",
			Help:      "Failed report API attempts",
		}, []string{"reason"}),
		pagesDownloaded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_downloaded_total",
			Help:      "Report pages fetched",
		}, []string{"report"}),
		logEventsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_events_persisted_total",
			Help:      "Log events flushed to the database",
		}, []string{"result"}),
		jobsEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Jobs inserted into the report queue",
		}, []string{"kind"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Admin API requests by route and status code",
		}, []string{"method", "route", "code"}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// JobFinished records a job reaching status after d
func (m *Metrics) JobFinished(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(kind, status).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RowsLoaded adds n rows for table
func (m *Metrics) RowsLoaded(table string, n int64) {
	if m == nil {
		return
	}
	m.rowsLoaded.WithLabelValues(table).Add(float64(n))
}

// BatchStarted increments the running batch gauge
func (m *Metrics) BatchStarted(kind string) {
	if m == nil {
		return
	}
	m.activeBatches.WithLabelValues(kind).Inc()
}

// BatchFinished decrements the running batch gauge
func (m *Metrics) BatchFinished(kind string) {
	if m == nil {
		return
	}
	m.activeBatches.WithLabelValues(kind).Dec()
}

// DownloadRetry counts one failed API attempt; reason is "rate_limit" or "error"
func (m *Metrics) DownloadRetry(reason string) {
	if m == nil {
		return
	}
	m.downloadRetries.WithLabelValues(reason).Inc()
}

// PagesDownloaded adds n fetched pages for report
func (m *Metrics) PagesDownloaded(report string, n int) {
	if m == nil {
		return
	}
	m.pagesDownloaded.WithLabelValues(report).Add(float64(n))
}

// LogFlush records a persister flush of n events
func (m *Metrics) LogFlush(n int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.logEventsWritten.WithLabelValues(result).Add(float64(n))
}

// JobsEnqueued adds n jobs inserted for kind
func (m *Metrics) JobsEnqueued(kind string, n int) {
	if m == nil {
		return
	}
	m.jobsEnqueued.WithLabelValues(kind).Add(float64(n))
}

// HTTPRequest counts one served request. route is the matched pattern, not the raw path.
func (m *Metrics) HTTPRequest(method, route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
