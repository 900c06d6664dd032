package dispatch

import (
	"fmt"

	"code.hybscloud.com/atomix"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
)

// UserMessage is the message argument of a trap: the address the caller
// passed and the kernel's view of the buffer at that address.
type UserMessage struct {
	Addr uint64
	Msg  *kernel.Message
}

// ErrorHook observes every failed call. It must not block.
type ErrorHook func(caller kernel.Endpoint, op Op, err error)

// Stats are aggregate call counters. They never affect control flow.
type Stats struct {
	Sent     uint64
	Received uint64
	Notified uint64
	Errors   uint64
}

// Dispatcher is the trap entry point: it validates a call and routes it
// to the IPC core.
type Dispatcher struct {
	core    *kernel.Core
	perms   Permissions
	addrs   AddressChecker
	metrics *monitoring.Metrics
	logger  *logging.Logger
	limiter *rate.Limiter
	onError ErrorHook

	sent     atomix.Uint64
	received atomix.Uint64
	notified atomix.Uint64
	errors   atomix.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPermissions sets the privilege check. The default allows everything.
func WithPermissions(p Permissions) Option {
	return func(d *Dispatcher) { d.perms = p }
}

// WithAddressChecker sets the message address check. The default allows
// every address.
func WithAddressChecker(a AddressChecker) Option {
	return func(d *Dispatcher) { d.addrs = a }
}

// WithMetrics records calls and errors in m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the logger used for failed calls and panics.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = l.Named("dispatch") }
}

// WithErrorLogLimit bounds how many failed calls per second are logged.
func WithErrorLogLimit(rps float64, burst int) Option {
	return func(d *Dispatcher) { d.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithErrorHook replaces the default error hook, which logs.
func WithErrorHook(h ErrorHook) Option {
	return func(d *Dispatcher) { d.onError = h }
}

// New creates a Dispatcher over core.
func New(core *kernel.Core, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		core:    core,
		perms:   AllowAll{},
		addrs:   AllowAll{},
		logger:  logging.NewNop(),
		limiter: rate.NewLimiter(10, 20),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.onError == nil {
		d.onError = d.logError
	}
	return d
}

// Core returns the IPC core calls are routed to.
func (d *Dispatcher) Core() *kernel.Core { return d.core }

// Dispatch runs one IPC trap for caller. A caller that is not an intact,
// live record of the kernel's table is fatal: the kernel enters panic mode
// and a *FatalError is returned. Every other failure is returned to the
// caller with no state changed.
func (d *Dispatcher) Dispatch(caller *kernel.Record, op Op, target kernel.Endpoint, um *UserMessage) (kernel.Outcome, error) {
	if !d.core.Table().Owns(caller) || caller.Endpoint() == kernel.None {
		return kernel.Delivered, d.fatal(caller, "caller failed identity check")
	}
	if d.core.InPanicMode() {
		return kernel.Delivered, &FatalError{Caller: caller.Endpoint(), Reason: "kernel in panic mode"}
	}

	out, err := d.route(caller, op, target, um)
	if err != nil {
		d.errors.Add(1)
		d.metrics.RecordError(op.String(), CodeName(Errno(err)))
		d.onError(caller.Endpoint(), op, err)
		return out, err
	}

	switch op {
	case OpSend, OpSendNB:
		d.sent.Add(1)
	case OpReceive:
		d.received.Add(1)
	case OpSendRec:
		// The reply is counted only once it is in hand.
		d.sent.Add(1)
		if out == kernel.Delivered {
			d.received.Add(1)
		}
	case OpReply:
		d.sent.Add(1)
	case OpNotify:
		d.notified.Add(1)
	}
	d.metrics.RecordCall(op.String(), out.String())
	return out, nil
}

func (d *Dispatcher) route(caller *kernel.Record, op Op, target kernel.Endpoint, um *UserMessage) (kernel.Outcome, error) {
	var m *kernel.Message
	if um != nil {
		if err := d.addrs.CheckAddress(caller, um.Addr); err != nil {
			return kernel.Delivered, err
		}
		m = um.Msg
	}
	if !op.Valid() {
		return kernel.Delivered, fmt.Errorf("%v: %w", op, ErrNotImplemented)
	}
	if op.NeedsMessage() && m == nil {
		return kernel.Delivered, fmt.Errorf("%v: missing message: %w", op, kernel.ErrBadArgument)
	}
	if target == kernel.Any && op.Targeted() {
		return kernel.Delivered, fmt.Errorf("%v: wildcard target: %w", op, kernel.ErrBadArgument)
	}
	if err := d.perms.CheckCall(caller, op, target); err != nil {
		return kernel.Delivered, err
	}

	switch op {
	case OpSend:
		return d.core.Send(caller, target, m, false)
	case OpSendNB:
		return d.core.Send(caller, target, m, true)
	case OpReceive:
		return d.core.Receive(caller, target, m, false)
	case OpSendRec:
		return d.core.SendRec(caller, target, m)
	case OpNotify:
		var badge uint32
		if m != nil {
			badge = uint32(m.Word(0))
		}
		return kernel.Delivered, d.core.Notify(caller, target, badge)
	case OpReply:
		return kernel.Delivered, d.core.Reply(caller, target, m)
	case OpEcho:
		return kernel.Delivered, d.core.Echo(caller, m)
	default:
		return kernel.Delivered, fmt.Errorf("%v: %w", op, ErrNotImplemented)
	}
}

// Stats returns the aggregate call counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:     d.sent.Load(),
		Received: d.received.Load(),
		Notified: d.notified.Load(),
		Errors:   d.errors.Load(),
	}
}

func (d *Dispatcher) fatal(caller *kernel.Record, reason string) error {
	ep := kernel.None
	if caller != nil {
		ep = caller.Endpoint()
	}
	d.core.Panic(kernel.PanicInfo{Caller: ep, Reason: reason})
	d.metrics.IncPanics()
	d.logger.Error("kernel panic", zap.Stringer("caller", ep), zap.String("reason", reason))
	return &FatalError{Caller: ep, Reason: reason}
}

func (d *Dispatcher) logError(caller kernel.Endpoint, op Op, err error) {
	if !d.limiter.Allow() {
		return
	}
	d.logger.Debug("ipc call failed",
		zap.Stringer("caller", caller),
		zap.Stringer("op", op),
		zap.String("code", CodeName(Errno(err))),
		zap.Error(err),
	)
}
