package trap

import (
	"context"
	"fmt"

	"code.hybscloud.com/iox"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/dispatch"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
)

// Port is one process's trap into the kernel. A Port is used by a single
// goroutine.
type Port struct {
	h    *Host
	d    *dispatch.Dispatcher
	r    *kernel.Record
	ep   kernel.Endpoint
	addr uint64
}

// Port binds r to d. addr is the address of r's message buffer, checked by
// the dispatcher on every call.
func (h *Host) Port(d *dispatch.Dispatcher, r *kernel.Record, addr uint64) *Port {
	return &Port{h: h, d: d, r: r, ep: r.Endpoint(), addr: addr}
}

// Endpoint returns the endpoint of the process behind the port.
func (p *Port) Endpoint() kernel.Endpoint { return p.ep }

// Call issues op against target and returns once the caller may run
// again. For receive and sendrec the delivered message is left in m.
//
// If ctx ends while the call is suspended, the pending IPC is aborted and
// ctx.Err() is returned, unless the call completed first, in which case
// the completion wins.
func (p *Port) Call(ctx context.Context, op dispatch.Op, target kernel.Endpoint, m *kernel.Message) error {
	timer := monitoring.NewTimer(p.h.metrics, op.String())
	defer timer.Stop()

	out, err := p.d.Dispatch(p.r, op, target, &dispatch.UserMessage{Addr: p.addr, Msg: m})
	if err != nil || out == kernel.Delivered {
		return err
	}

	var buf *kernel.Message
	if op == dispatch.OpReceive || op == dispatch.OpSendRec {
		buf = m
	}
	return p.wait(ctx, buf)
}

func (p *Port) wait(ctx context.Context, buf *kernel.Message) error {
	p.h.metrics.IncParked()
	defer p.h.metrics.DecParked()

	core := p.h.core
	done := ctx.Done()
	for {
		select {
		case <-p.h.wake[p.r.Slot()]:
			if p.r.Endpoint() != p.ep {
				return fmt.Errorf("%v terminated: %w", p.ep, kernel.ErrNoSuchProcess)
			}
			if finished, err := core.Collect(p.r, buf); finished {
				return err
			}
		case <-done:
			if core.Abort(p.r) {
				p.h.drain(p.r)
				return ctx.Err()
			}
			// Already completed: its wake-up is on the way.
			done = nil
		}
	}
}

// SendPoll sends m to target without ever blocking in the kernel, backing
// off between attempts until target takes it or ctx ends.
func (p *Port) SendPoll(ctx context.Context, target kernel.Endpoint, m *kernel.Message) error {
	var backoff iox.Backoff
	for {
		err := p.Call(ctx, dispatch.OpSendNB, target, m)
		if !kernel.IsWouldBlock(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		backoff.Wait()
	}
}
