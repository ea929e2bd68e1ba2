package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.Request("swedbank", "ok")
	metrics.Request("swedbank", "ok")
	metrics.Request("swedbank", "signature")
	metrics.Transition("nordea", "PAYED")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("swedbank", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("swedbank", "signature")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitionsTotal.WithLabelValues("nordea", "PAYED")))
}

func TestMetricsNil(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.Request("swedbank", "ok")
		metrics.Transition("swedbank", "PAYED")
		metrics.Callback(true, time.Second)
		metrics.CertificateGenerated(time.Second)
	})
}

func TestMetricsHandler(t *testing.T) {
	metrics := NewMetrics()
	metrics.Callback(false, 250*time.Millisecond)

	recorder := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `pangalink_callback_duration_seconds_count{status="failed"} 1`)
}
