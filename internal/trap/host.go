// Package trap is the hosted resumption layer. Each simulated process runs
// on its own goroutine and issues IPC calls through a Port; a call the core
// suspends parks the goroutine until the scheduler hook wakes it.
package trap

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
)

// Host implements kernel.Scheduler over the reference run queue and turns
// MakeRunnable into a wake-up for the parked caller.
type Host struct {
	*kernel.RunQueue
	core    *kernel.Core
	wake    []chan struct{}
	metrics *monitoring.Metrics
}

// NewHost creates the core for t with the Host as its scheduler.
func NewHost(t *kernel.Table, metrics *monitoring.Metrics, opts ...kernel.Option) *Host {
	h := &Host{
		RunQueue: kernel.NewRunQueue(t),
		wake:     make([]chan struct{}, t.Size()),
		metrics:  metrics,
	}
	for i := range h.wake {
		h.wake[i] = make(chan struct{}, 1)
	}
	h.core = kernel.NewCore(t, h, opts...)
	return h
}

// Core returns the IPC core driven by the host.
func (h *Host) Core() *kernel.Core { return h.core }

// MakeRunnable implements kernel.Scheduler.
func (h *Host) MakeRunnable(r *kernel.Record) {
	h.RunQueue.MakeRunnable(r)
	select {
	case h.wake[r.Slot()] <- struct{}{}:
	default:
	}
}

// Spawn starts a process in slot s.
func (h *Host) Spawn(s kernel.Slot, name string) (*kernel.Record, error) {
	r, err := h.core.Spawn(s, name)
	if err != nil {
		return nil, err
	}
	h.drain(r)
	h.metrics.SetProcsLive(h.live())
	return r, nil
}

// Terminate tears down process e. Its own parked call, if any, fails with
// kernel.ErrNoSuchProcess.
func (h *Host) Terminate(e kernel.Endpoint) error {
	r, ok := h.core.Table().Resolve(e)
	if !ok {
		return fmt.Errorf("terminate %v: %w", e, kernel.ErrNoSuchProcess)
	}
	if err := h.core.Terminate(e); err != nil {
		return err
	}
	// The victim is no longer runnable; poke its goroutine directly.
	select {
	case h.wake[r.Slot()] <- struct{}{}:
	default:
	}
	h.metrics.SetProcsLive(h.live())
	return nil
}

func (h *Host) live() int {
	n := 0
	t := h.core.Table()
	for i := 0; i < t.Size(); i++ {
		if t.Record(kernel.Slot(i)).Endpoint() != kernel.None {
			n++
		}
	}
	return n
}

func (h *Host) drain(r *kernel.Record) {
	select {
	case <-h.wake[r.Slot()]:
	default:
	}
}
