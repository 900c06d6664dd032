package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCallAndError(t *testing.T) {
	m := NewMetrics()

	m.RecordCall("send", "delivered")
	m.RecordCall("send", "suspended")
	m.RecordError("send", "EDEADLK")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IPCCalls.WithLabelValues("send", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IPCErrors.WithLabelValues("send", "EDEADLK")))

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalCalls)
	assert.Equal(t, int64(1), snap.TotalErrors)
	assert.Equal(t, int64(1), snap.Suspended)
}

func TestParkedGauge(t *testing.T) {
	m := NewMetrics()
	m.IncParked()
	m.IncParked()
	m.DecParked()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Parked))
	assert.Equal(t, int64(1), m.Snapshot().Parked)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCall("send", "delivered")
		m.RecordError("send", "EINVAL")
		m.RecordDuration("send", time.Millisecond)
		m.IncPanics()
		m.IncParked()
		m.DecParked()
		m.SetProcsLive(3)
		NewTimer(m, "send").Stop()
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
}

func TestSeparateRegistries(t *testing.T) {
	// Two collectors must not collide on registration.
	a, b := NewMetrics(), NewMetrics()
	a.IncPanics()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Panics))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Panics))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/ping", "200")))
}
