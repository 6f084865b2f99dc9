package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.JobFinished("manual", "PROCESSED", 2*time.Second)
	m.JobFinished("manual", "PROCESSED", time.Second)
	m.JobFinished("scheduled", "FAILED", time.Second)
	m.RowsLoaded("ga.sessions", 120)
	m.BatchStarted("manual")
	m.BatchStarted("manual")
	m.BatchFinished("manual")
	m.DownloadRetry("rate_limit")
	m.PagesDownloaded("sessions", 3)
	m.LogFlush(10, nil)
	m.LogFlush(4, errors.New("db down"))
	m.JobsEnqueued("manual", 6)
	m.HTTPRequest("GET", "/api/v1/jobs/:job_id", 404)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("manual", "PROCESSED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("scheduled", "FAILED")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.rowsLoaded.WithLabelValues("ga.sessions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeBatches.WithLabelValues("manual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.downloadRetries.WithLabelValues("rate_limit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pagesDownloaded.WithLabelValues("sessions")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.logEventsWritten.WithLabelValues("ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.logEventsWritten.WithLabelValues("error")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.jobsEnqueued.WithLabelValues("manual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/jobs/:job_id", "404")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobFinished("manual", "FAILED", time.Second)
		m.RowsLoaded("t", 1)
		m.BatchStarted("manual")
		m.BatchFinished("manual")
		m.DownloadRetry("error")
		m.PagesDownloaded("r", 1)
		m.LogFlush(1, nil)
		m.JobsEnqueued("manual", 1)
		m.HTTPRequest("GET", "/health", 200)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RowsLoaded("ga.pages", 5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ga_queue_rows_loaded_total{table="ga.pages"} 5`)
}
