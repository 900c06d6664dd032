package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// IPC metrics
	IPCCalls    *prometheus.CounterVec
	IPCDuration *prometheus.HistogramVec
	IPCErrors   *prometheus.CounterVec
	Parked      prometheus.Gauge
	Panics      prometheus.Counter

	// Process metrics
	ProcsLive prometheus.Gauge

	// HTTP metrics (admin surface)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalCalls  int64
	TotalErrors int64
	Suspended   int64
	Parked      int64
}

// NewMetrics creates a metrics collector on its own registry, so several
// kernels (and tests) can coexist in one binary.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}

// NewMetricsWith creates a metrics collector registered on reg.
func NewMetricsWith(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		IPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_ipc_calls_total",
				Help: "Total number of IPC calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		IPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_ipc_call_duration_seconds",
				Help:    "Time from trap to resumption of hosted IPC calls",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"op"},
		),
		IPCErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_ipc_errors_total",
				Help: "Total number of failed IPC calls by operation and error code",
			},
			[]string{"op", "code"},
		),
		Parked: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_ipc_parked",
				Help: "Number of hosted callers waiting for a suspended call to finish",
			},
		),
		Panics: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_panics_total",
				Help: "Total number of kernel panics raised",
			},
		),

		ProcsLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_procs_live",
				Help: "Number of live processes in the table",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_admin_http_requests_total",
				Help: "Total number of admin HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_admin_http_request_duration_seconds",
				Help:    "Admin HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
	}
	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "kernel_uptime_seconds",
			Help: "Kernel uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StartTime returns when the collector was created.
func (m *Metrics) StartTime() time.Time {
	return m.startTime
}

// RecordCall records a finished dispatch. A nil collector records nothing.
func (m *Metrics) RecordCall(op, outcome string) {
	if m == nil {
		return
	}
	m.IPCCalls.WithLabelValues(op, outcome).Inc()

	m.mu.Lock()
	m.snapshot.TotalCalls++
	if outcome == "suspended" {
		m.snapshot.Suspended++
	}
	m.mu.Unlock()
}

// RecordError records a failed dispatch with its ABI code.
func (m *Metrics) RecordError(op, code string) {
	if m == nil {
		return
	}
	m.IPCErrors.WithLabelValues(op, code).Inc()

	m.mu.Lock()
	m.snapshot.TotalCalls++
	m.snapshot.TotalErrors++
	m.mu.Unlock()
}

// RecordDuration records how long a hosted call took end to end.
func (m *Metrics) RecordDuration(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.IPCDuration.WithLabelValues(op).Observe(d.Seconds())
}

// IncPanics counts a kernel panic.
func (m *Metrics) IncPanics() {
	if m == nil {
		return
	}
	m.Panics.Inc()
}

// IncParked counts a caller that started waiting.
func (m *Metrics) IncParked() {
	if m == nil {
		return
	}
	m.Parked.Inc()
	m.mu.Lock()
	m.snapshot.Parked++
	m.mu.Unlock()
}

// DecParked counts a caller that stopped waiting.
func (m *Metrics) DecParked() {
	if m == nil {
		return
	}
	m.Parked.Dec()
	m.mu.Lock()
	m.snapshot.Parked--
	m.mu.Unlock()
}

// SetProcsLive sets the number of live processes.
func (m *Metrics) SetProcsLive(n int) {
	if m == nil {
		return
	}
	m.ProcsLive.Set(float64(n))
}

// RecordHTTPRequest records an admin HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
