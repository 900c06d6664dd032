package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/dispatch"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/image"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/trap"
)

// Message types of the demo protocol.
const (
	typeEcho int32 = 1
	typeDone int32 = 2
)

// workload is the goroutine standing in for one boot process.
type workload struct {
	proc   image.Process
	port   *trap.Port
	logger *logging.Logger

	// clients only
	target kernel.Endpoint
	rounds int

	mu         sync.Mutex
	terminated bool
	stop       context.CancelFunc
	done       chan struct{}
}

// start marks the workload running under a child of ctx. It reports false
// once the process has been terminated.
func (w *workload) start(ctx context.Context) (context.Context, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminated {
		return nil, false
	}
	ctx, w.stop = context.WithCancel(ctx)
	w.done = make(chan struct{})
	return ctx, true
}

func (w *workload) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	close(w.done)
}

// halt stops the workload for good and waits for its goroutine to leave
// the kernel. It reports false if it was already halted.
func (w *workload) halt() bool {
	w.mu.Lock()
	if w.terminated {
		w.mu.Unlock()
		return false
	}
	w.terminated = true
	stop, done := w.stop, w.done
	w.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	return true
}

func (w *workload) run(ctx context.Context) error {
	switch w.proc.Role {
	case image.RoleEcho:
		return w.echo(ctx)
	case image.RoleClient:
		return w.client(ctx)
	default:
		return w.idle(ctx)
	}
}

// echo replies to every request with its first payload word doubled.
// Notifications are logged, never answered.
func (w *workload) echo(ctx context.Context) error {
	var m kernel.Message
	served := 0
	for {
		if err := w.port.Call(ctx, dispatch.OpReceive, kernel.Any, &m); err != nil {
			return err
		}
		if kernel.IsKernelNotify(m.Type) {
			w.logger.Info("Kernel notification",
				zap.Stringer("source", m.Source),
				zap.Uint64("interrupts", m.Interrupts()),
				zap.Uint64("signals", m.SigSet()),
			)
			continue
		}
		if m.IsNotify() {
			w.logger.Info("Client finished",
				zap.Stringer("client", m.Source),
				zap.Uint32("badge", m.Badge()),
				zap.Int("served", served),
			)
			continue
		}
		m.SetWord(0, m.Word(0)*2)
		if err := w.port.Call(ctx, dispatch.OpReply, m.Source, &m); err != nil {
			if errors.Is(err, kernel.ErrNoSuchProcess) {
				w.logger.Warn("Client vanished before its reply", zap.Stringer("client", m.Source))
				continue
			}
			return err
		}
		served++
	}
}

// client runs its rounds of sendrec against the echo server and then
// notifies it with the round count as badge.
func (w *workload) client(ctx context.Context) error {
	for i := 0; i < w.rounds; i++ {
		m := kernel.Message{Type: typeEcho}
		m.SetWord(0, uint64(i))
		if err := w.port.Call(ctx, dispatch.OpSendRec, w.target, &m); err != nil {
			return err
		}
		if m.Source != w.target || m.Word(0) != uint64(2*i) {
			return fmt.Errorf("round %d: bad reply %d from %v", i, m.Word(0), m.Source)
		}
	}

	done := kernel.Message{Type: typeDone}
	done.SetWord(0, uint64(w.rounds))
	if err := w.port.Call(ctx, dispatch.OpNotify, w.target, &done); err != nil {
		return err
	}
	w.logger.Info("Rounds complete", zap.Int("rounds", w.rounds))
	return nil
}

// idle waits for messages nobody is allowed to send.
func (w *workload) idle(ctx context.Context) error {
	var m kernel.Message
	for {
		if err := w.port.Call(ctx, dispatch.OpReceive, kernel.Any, &m); err != nil {
			return err
		}
		w.logger.Warn("Idle process received a message", zap.Stringer("from", m.Source))
	}
}
