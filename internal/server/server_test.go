package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/dispatch"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/shared/id"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Admin.Enabled = false
	cfg.Kernel.Slots = 8
	cfg.Kernel.DemoRounds = 25
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := newServer(cfg, logging.NewNop())
	require.NoError(t, err)
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRunDefaultImage(t *testing.T) {
	if kernel.RaceEnabled {
		t.Skip("skip: atomix orderings are invisible to the race detector")
	}

	s := newTestServer(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	select {
	case <-s.ClientsDone():
	case err := <-errc:
		t.Fatalf("run stopped early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("clients did not finish")
	}
	cancel()
	require.NoError(t, <-errc)

	stats := s.Dispatcher().Stats()
	// 25 sendrec from the client, 25 receive and 25 reply from the echo
	// server. A sendrec suspends for its reply, so it adds no receive.
	assert.GreaterOrEqual(t, stats.Sent, uint64(50))
	assert.GreaterOrEqual(t, stats.Received, uint64(25))
	assert.Equal(t, uint64(1), stats.Notified)
	assert.Zero(t, stats.Errors)
	assert.NoError(t, s.Close())
}

func TestRunStopsOnKernelPanic(t *testing.T) {
	if kernel.RaceEnabled {
		t.Skip("skip: atomix orderings are invisible to the race detector")
	}

	s := newTestServer(t, testConfig())

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	_, err := s.Dispatcher().Dispatch(nil, dispatch.OpSend, 1, nil)
	require.ErrorIs(t, err, dispatch.ErrBadCaller)

	select {
	case err := <-errc:
		assert.ErrorContains(t, err, "kernel panic")
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop")
	}

	w := get(t, s, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status    string  `json:"status"`
		Instance  string  `json:"instance"`
		Uptime    float64 `json:"uptime_seconds"`
		PanicMode bool    `json:"panic_mode"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, s.id.String(), body.Instance)
	assert.False(t, body.PanicMode)
	assert.GreaterOrEqual(t, body.Uptime, 0.0)
}

func TestProcs(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := get(t, s, "/procs")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Procs []procView `json:"procs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Procs, 3)
	assert.Equal(t, "echo", body.Procs[0].Name)
	assert.Equal(t, kernel.Slot(1), body.Procs[0].Slot)
	assert.Equal(t, "RUNNABLE", body.Procs[0].Flags)
	assert.True(t, body.Procs[0].Runnable)
	assert.Equal(t, kernel.NoSlot, body.Procs[0].SendTo)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())
	get(t, s, "/healthz")

	w := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kernel_uptime_seconds")
	assert.Contains(t, w.Body.String(), `kernel_admin_http_requests_total{method="GET",path="/healthz",status="200"} 1`)
	assert.Contains(t, w.Body.String(), "kernel_procs_live 3")
}

func TestPrivilegesEnforced(t *testing.T) {
	s := newTestServer(t, testConfig())
	idle, ok := s.host.Core().Table().Resolve(kernel.MakeEndpoint(0, 3))
	require.True(t, ok)
	echo := kernel.MakeEndpoint(0, 1)

	// The idle process may only receive.
	m := kernel.Message{}
	_, err := s.disp.Dispatch(idle, dispatch.OpSendNB, echo, &dispatch.UserMessage{Addr: 196608, Msg: &m})
	assert.ErrorIs(t, err, dispatch.ErrCallDenied)

	// Outside its segment.
	_, err = s.disp.Dispatch(idle, dispatch.OpReceive, kernel.Any, &dispatch.UserMessage{Addr: 0, Msg: &m})
	assert.ErrorIs(t, err, dispatch.ErrBadAddress)
}

func TestBootImageFromFile(t *testing.T) {
	if kernel.RaceEnabled {
		t.Skip("skip: atomix orderings are invisible to the race detector")
	}

	path := filepath.Join(t.TempDir(), "boot.toml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(`
[[processes]]
name = "srv"
slot = 0
role = "echo"
traps = ["receive", "reply"]
send_to = ["*"]
segment = { base = 4096, size = 4096 }

[[processes]]
name = "cli"
slot = 7
role = "client"
target = "srv"
traps = ["sendrec", "notify"]
send_to = ["srv"]
segment = { base = 8192, size = 4096 }
`)), 0o600))

	cfg := testConfig()
	cfg.Kernel.Image = path
	cfg.Kernel.DemoRounds = 5
	s := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	select {
	case <-s.ClientsDone():
	case <-time.After(10 * time.Second):
		t.Fatal("clients did not finish")
	}
	cancel()
	require.NoError(t, <-errc)
	assert.Equal(t, uint64(1), s.Dispatcher().Stats().Notified)
}

func TestBadBootImage(t *testing.T) {
	cfg := testConfig()
	cfg.Kernel.Image = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := newServer(cfg, logging.NewNop())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Kernel.Slots = 2 // default image uses slot 3
	_, err = newServer(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestGlobalRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes[i] = w.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(logging.NewNop()))
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	rid := w.Header().Get(RequestIDHeader)
	require.True(t, strings.HasPrefix(rid, id.RequestPrefix+"_"))
	assert.True(t, id.IsValid(strings.TrimPrefix(rid, id.RequestPrefix+"_")))
	assert.Equal(t, rid, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "caller-chosen")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "caller-chosen", w.Header().Get(RequestIDHeader))
}

func del(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, path, nil))
	return w
}

func TestTerminateBeforeRun(t *testing.T) {
	if kernel.RaceEnabled {
		t.Skip("skip: atomix orderings are invisible to the race detector")
	}

	s := newTestServer(t, testConfig())

	require.Equal(t, http.StatusNoContent, del(t, s, "/procs/idle").Code)
	assert.Equal(t, http.StatusGone, del(t, s, "/procs/idle").Code)
	assert.Equal(t, http.StatusNotFound, del(t, s, "/procs/nobody").Code)

	var body struct {
		Procs []procView `json:"procs"`
	}
	require.NoError(t, json.Unmarshal(get(t, s, "/procs").Body.Bytes(), &body))
	assert.Len(t, body.Procs, 2)

	// Nothing of the old process survives in the privilege or segment tables.
	idle := s.host.Core().Table().Record(3)
	assert.ErrorIs(t, s.privs.CheckCall(idle, dispatch.OpReceive, kernel.Any), dispatch.ErrCallDenied)
	assert.ErrorIs(t, s.segs.CheckAddress(idle, 196608), dispatch.ErrBadAddress)

	// The run never starts the dead process.
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	select {
	case <-s.ClientsDone():
	case <-time.After(10 * time.Second):
		t.Fatal("clients did not finish")
	}
	cancel()
	require.NoError(t, <-errc)
	assert.False(t, s.host.Core().InPanicMode())
}

func TestTerminateServerReleasesClient(t *testing.T) {
	if kernel.RaceEnabled {
		t.Skip("skip: atomix orderings are invisible to the race detector")
	}

	cfg := testConfig()
	cfg.Kernel.DemoRounds = 1 << 30
	s := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return s.Dispatcher().Stats().Sent > 10
	}, 10*time.Second, time.Millisecond)
	require.NoError(t, s.Terminate("echo"))

	select {
	case <-s.ClientsDone():
	case err := <-errc:
		t.Fatalf("run stopped: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("client stayed blocked on a dead server")
	}
	assert.False(t, s.host.Core().InPanicMode())

	cancel()
	require.NoError(t, <-errc)
}

func TestLogLevelRoute(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/loglevel", strings.NewReader(`{"level":"debug"}`)))
	require.Equal(t, http.StatusOK, w.Code)

	w = get(t, s, "/loglevel")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"level":"debug"}`, w.Body.String())
}

func post(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)
	return w
}

func TestRaiseRoutes(t *testing.T) {
	s := newTestServer(t, testConfig())
	idle := s.host.Core().Table().Record(3)

	require.Equal(t, http.StatusAccepted, post(t, s, "/procs/idle/irq", `{"set":5}`).Code)
	require.Equal(t, http.StatusAccepted, post(t, s, "/procs/idle/signal", `{"set":2}`).Code)
	assert.Equal(t, uint64(5), idle.InterruptsPending())
	assert.Equal(t, uint64(2), idle.SignalsPending())

	assert.Equal(t, http.StatusBadRequest, post(t, s, "/procs/idle/irq", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, post(t, s, "/procs/nobody/irq", `{"set":1}`).Code)

	require.NoError(t, s.Terminate("idle"))
	assert.Equal(t, http.StatusGone, post(t, s, "/procs/idle/signal", `{"set":1}`).Code)
	assert.Zero(t, idle.SignalsPending())
}

func TestRaiseKernelNotify(t *testing.T) {
	s := newTestServer(t, testConfig())
	assert.ErrorIs(t, s.Raise("echo", kernel.Any, 0), kernel.ErrBadArgument)
	require.NoError(t, s.Raise("echo", kernel.System, 1))
	assert.ErrorIs(t, s.Raise("ghost", kernel.Hardware, 1), ErrUnknownProcess)
}
