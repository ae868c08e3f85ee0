package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	m := New()
	m.RecordRun("success", 2*time.Second, 4)
	m.RecordRun("partial", time.Second, 3)
	m.PlantScraped()
	m.ScrapeError("parse")
	m.GeminiRequest(errors.New("quota"))
	m.MQTTPublish(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.plantsTracked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scrapeErrors.WithLabelValues("parse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.geminiRequests.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mqttPublishes.WithLabelValues("ok")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.HTTPRequest("GET", "/api/v1/display", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `plantcare_http_requests_total{method="GET",route="/api/v1/display",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRun("failed", 0, 0)
		m.PlantScraped()
		m.HTTPRequest("GET", "/", 200, 0)
	})
}
