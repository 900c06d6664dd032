package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/dispatch"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/image"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/priv"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/trap"
)

// ErrUnknownProcess is returned for a name the boot image does not define.
var ErrUnknownProcess = errors.New("unknown process")

// Server wraps the booted kernel, its workload and the admin surface
type Server struct {
	id      uuid.UUID
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	image   *image.Image

	host  *trap.Host
	disp  *dispatch.Dispatcher
	privs *priv.Table
	segs  *dispatch.SegmentChecker

	workloads   []*workload
	clientsDone chan struct{}
	panics      chan kernel.PanicInfo

	router *gin.Engine
	http   *http.Server
}

// NewServer boots a kernel from cfg
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return newServer(cfg, logger)
}

func newServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	id := uuid.New()
	logger = logger.With(zap.String("instance", id.String()))

	img := image.Default()
	if cfg.Kernel.Image != "" {
		loaded, err := image.Load(cfg.Kernel.Image)
		if err != nil {
			return nil, err
		}
		img = loaded
	}
	if err := img.Validate(cfg.Kernel.Slots); err != nil {
		return nil, fmt.Errorf("invalid boot image: %w", err)
	}

	table, err := kernel.NewTable(cfg.Kernel.Slots)
	if err != nil {
		return nil, err
	}

	metrics := monitoring.NewMetrics()
	host := trap.NewHost(table, metrics)
	privs := priv.NewTable(cfg.Kernel.Slots)
	segs := dispatch.NewSegmentChecker(cfg.Kernel.Slots)
	disp := dispatch.New(host.Core(),
		dispatch.WithPermissions(privs),
		dispatch.WithAddressChecker(segs),
		dispatch.WithMetrics(metrics),
		dispatch.WithLogger(logger),
		dispatch.WithErrorLogLimit(cfg.Logging.ErrorRPS, cfg.Logging.ErrorBurst),
	)

	s := &Server{
		id:          id,
		config:      cfg,
		logger:      logger,
		metrics:     metrics,
		image:       img,
		host:        host,
		disp:        disp,
		privs:       privs,
		segs:        segs,
		clientsDone: make(chan struct{}),
		panics:      make(chan kernel.PanicInfo, 1),
	}
	host.Core().SetPanicHandler(func(info kernel.PanicInfo) {
		select {
		case s.panics <- info:
		default:
		}
	})

	if err := s.boot(); err != nil {
		return nil, err
	}
	s.router = s.newRouter()

	logger.Info("Kernel booted",
		zap.Int("slots", cfg.Kernel.Slots),
		zap.Int("processes", len(img.Processes)),
		zap.String("image", imageName(cfg.Kernel.Image)),
	)
	return s, nil
}

// boot spawns every image process with its privileges and segment.
func (s *Server) boot() error {
	endpoints := make(map[string]kernel.Endpoint, len(s.image.Processes))
	for _, p := range s.image.Processes {
		slot := kernel.Slot(p.Slot)
		grant, err := s.image.Grant(p)
		if err != nil {
			return err
		}
		if err := s.privs.Set(slot, grant); err != nil {
			return err
		}
		seg := p.DispatchSegment()
		if err := s.segs.Set(slot, seg); err != nil {
			return err
		}
		r, err := s.host.Spawn(slot, p.Name)
		if err != nil {
			return fmt.Errorf("spawn %s: %w", p.Name, err)
		}
		endpoints[p.Name] = r.Endpoint()
		s.workloads = append(s.workloads, &workload{
			proc:   p,
			port:   s.host.Port(s.disp, r, seg.Base),
			logger: s.logger.Named(p.Name),
		})
		s.logger.Debug("Spawned process",
			zap.String("name", p.Name),
			zap.Stringer("endpoint", r.Endpoint()),
			zap.String("role", string(p.Role)),
		)
	}
	for _, w := range s.workloads {
		if w.proc.Role == image.RoleClient {
			w.target = endpoints[w.proc.Target]
			w.rounds = s.config.Kernel.DemoRounds
		}
	}
	return nil
}

// Router returns the admin HTTP handler
func (s *Server) Router() http.Handler { return s.router }

// Dispatcher returns the kernel's trap entry point
func (s *Server) Dispatcher() *dispatch.Dispatcher { return s.disp }

// ClientsDone is closed once every client process has stopped
func (s *Server) ClientsDone() <-chan struct{} { return s.clientsDone }

// Run runs the workload and the admin surface until ctx ends, a process
// fails or the kernel panics
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, len(s.workloads)+1)
	if s.config.Admin.Enabled {
		s.http = &http.Server{
			Addr:              s.config.Admin.Address,
			Handler:           s.router,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			s.logger.Info("Starting admin server", zap.String("addr", s.config.Admin.Address))
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	var wg, clients sync.WaitGroup
	for _, w := range s.workloads {
		wctx, ok := w.start(ctx)
		if !ok {
			continue
		}
		wg.Add(1)
		if w.proc.Role == image.RoleClient {
			clients.Add(1)
		}
		go func(w *workload) {
			defer wg.Done()
			defer w.finish()
			err := w.run(wctx)
			if w.proc.Role == image.RoleClient {
				clients.Done()
			}
			switch {
			case err == nil, errors.Is(err, context.Canceled):
			case errors.Is(err, kernel.ErrNoSuchProcess):
				w.logger.Warn("Process stopped, peer terminated", zap.Error(err))
			default:
				errc <- fmt.Errorf("process %s: %w", w.proc.Name, err)
			}
		}(w)
	}
	go func() {
		clients.Wait()
		close(s.clientsDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	case info := <-s.panics:
		runErr = fmt.Errorf("kernel panic: caller %v: %s", info.Caller, info.Reason)
	}

	cancel()
	wg.Wait()
	if s.http != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to stop admin server", zap.Error(err))
		}
	}

	stats := s.disp.Stats()
	s.logger.Info("Kernel stopped",
		zap.Uint64("sent", stats.Sent),
		zap.Uint64("received", stats.Received),
		zap.Uint64("notified", stats.Notified),
		zap.Uint64("errors", stats.Errors),
		zap.Error(runErr),
	)
	return runErr
}

// Terminate stops the named boot process: its goroutine leaves the kernel,
// the kernel tears the process down and its privileges and segment are
// revoked. Peers blocked on it fail with kernel.ErrNoSuchProcess.
func (s *Server) Terminate(name string) error {
	w, err := s.workload(name)
	if err != nil {
		return err
	}
	if !w.halt() {
		return fmt.Errorf("process %q: %w", name, kernel.ErrNoSuchProcess)
	}

	slot := kernel.Slot(w.proc.Slot)
	ep := w.port.Endpoint()
	if err := s.host.Terminate(ep); err != nil {
		return err
	}
	s.privs.Revoke(slot)
	s.segs.Clear(slot)
	s.logger.Info("Terminated process", zap.String("name", name), zap.Stringer("endpoint", ep))
	return nil
}

// Raise posts a kernel notification from src (kernel.Hardware or
// kernel.System) to the named process, adding set to its pending
// interrupts or signals.
func (s *Server) Raise(name string, src kernel.Endpoint, set uint64) error {
	w, err := s.workload(name)
	if err != nil {
		return err
	}
	core := s.host.Core()
	ep := w.port.Endpoint()
	switch src {
	case kernel.Hardware:
		err = core.Interrupt(ep, set)
	case kernel.System:
		err = core.Signal(ep, set)
	default:
		err = core.KernelNotify(src, ep)
	}
	if err != nil {
		return fmt.Errorf("process %q: %w", name, err)
	}
	s.logger.Debug("Raised kernel notification",
		zap.String("name", name),
		zap.Stringer("source", src),
		zap.Uint64("set", set),
	)
	return nil
}

func (s *Server) workload(name string) (*workload, error) {
	for _, w := range s.workloads {
		if w.proc.Name == name {
			return w, nil
		}
	}
	return nil, fmt.Errorf("process %q: %w", name, ErrUnknownProcess)
}

// Close flushes the logger
func (s *Server) Close() error {
	_ = s.logger.Sync()
	return nil
}

func imageName(path string) string {
	if path == "" {
		return "default"
	}
	return path
}
