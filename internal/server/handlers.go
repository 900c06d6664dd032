package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
)

// adminRateLimit bounds admin requests per second across all clients.
const (
	adminRPS   = 50
	adminBurst = 100
)

func (s *Server) newRouter() *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID(s.logger))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: adminRPS, Burst: adminBurst}))

	router.GET("/healthz", s.health)
	router.GET("/procs", s.procs)
	router.DELETE("/procs/:name", s.terminate)
	router.POST("/procs/:name/irq", s.raise(kernel.Hardware))
	router.POST("/procs/:name/signal", s.raise(kernel.System))
	router.Any("/loglevel", gin.WrapH(s.logger.LevelHandler()))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	return router
}

// health reports liveness; a panicked kernel is unhealthy
func (s *Server) health(c *gin.Context) {
	core := s.host.Core()
	status, code := "healthy", http.StatusOK
	if core.InPanicMode() {
		status, code = "panic", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":         status,
		"instance":       s.id.String(),
		"uptime_seconds": time.Since(s.metrics.StartTime()).Seconds(),
		"panic_mode":     core.InPanicMode(),
		"ipc":            s.disp.Stats(),
		"parked":         s.metrics.Snapshot().Parked,
	})
}

type procView struct {
	Slot         kernel.Slot `json:"slot"`
	Name         string      `json:"name"`
	Endpoint     int32       `json:"endpoint"`
	Flags        string      `json:"flags"`
	SendTo       kernel.Slot `json:"send_to"`
	ReplyPending bool        `json:"reply_pending"`
	Runnable     bool        `json:"runnable"`
}

// procs lists the live processes and their IPC state
func (s *Server) procs(c *gin.Context) {
	t := s.host.Core().Table()
	out := make([]procView, 0, t.Size())
	for i := 0; i < t.Size(); i++ {
		r := t.Record(kernel.Slot(i))
		st := r.State()
		if st.Endpoint == kernel.None {
			continue
		}
		out = append(out, procView{
			Slot:         r.Slot(),
			Name:         r.Name(),
			Endpoint:     int32(st.Endpoint),
			Flags:        st.Flags.String(),
			SendTo:       st.SendTo,
			ReplyPending: st.ReplyPending,
			Runnable:     s.host.Contains(r),
		})
	}
	c.JSON(http.StatusOK, gin.H{"procs": out})
}

// terminate tears down one boot process by name
func (s *Server) terminate(c *gin.Context) {
	err := s.Terminate(c.Param("name"))
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}
	s.procError(c, err)
}

type raiseRequest struct {
	Set uint64 `json:"set" binding:"required"`
}

// raise posts an interrupt or signal set to one boot process
func (s *Server) raise(src kernel.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req raiseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.Raise(c.Param("name"), src, req.Set); err != nil {
			s.procError(c, err)
			return
		}
		c.Status(http.StatusAccepted)
	}
}

func (s *Server) procError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnknownProcess):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, kernel.ErrNoSuchProcess):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
