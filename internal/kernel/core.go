package kernel

import (
	"fmt"
	"time"
)

// Outcome is the non-error result of an IPC operation.
type Outcome uint8

const (
	// Delivered means the operation completed; the caller may resume.
	Delivered Outcome = iota
	// Suspended means the caller must not be resumed until MakeRunnable
	// fires for it.
	Suspended
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Core runs the IPC operations over a Table.
type Core struct {
	t     *Table
	sched Scheduler
	now   func() uint64
	panic panicState
}

// Option configures a Core.
type Option func(*Core)

// WithClock sets the time source stamped into notifications.
func WithClock(now func() uint64) Option {
	return func(c *Core) { c.now = now }
}

// NewCore creates the IPC core over t, reporting flag changes to s.
func NewCore(t *Table, s Scheduler, opts ...Option) *Core {
	boot := time.Now()
	c := &Core{
		t:     t,
		sched: s,
		now:   func() uint64 { return uint64(time.Since(boot)) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Table returns the process table the core runs over.
func (c *Core) Table() *Table { return c.t }

// Spawn brings a free slot to life as a runnable process with a fresh
// endpoint. Process creation proper happens outside the core; this is the
// part of it the IPC state depends on.
func (c *Core) Spawn(s Slot, name string) (*Record, error) {
	r := c.t.Record(s)
	if r == nil {
		return nil, fmt.Errorf("spawn slot %d: %w", s, ErrBadArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.flags&SlotFree == 0 {
		return nil, fmt.Errorf("spawn slot %d: %w", s, ErrSlotInUse)
	}
	r.name = name
	r.flags = 0
	r.getFrom = None
	r.replyPending = false
	r.wakeErr = nil
	r.staged = Message{}
	r.ep.Store(int64(MakeEndpoint(r.gen, s)))
	c.sched.MakeRunnable(r)
	return r, nil
}

// Collect reports whether r's last suspended operation has finished and,
// if so, returns its result. When the operation delivered a message into
// r, it is copied to buf. A record that is still blocked is not finished.
func (c *Core) Collect(r *Record, buf *Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.flags&(Sending|Receiving) != 0 {
		return false, nil
	}
	err := r.wakeErr
	r.wakeErr = nil
	if err == nil && buf != nil {
		*buf = r.staged
	}
	return true, err
}

// Abort cancels r's pending IPC: it leaves any pending-senders list, drops
// its Sending and Receiving flags and its reply continuation, and becomes
// runnable if nothing else blocks it. It reports whether anything was
// pending.
func (c *Core) Abort(r *Record) bool {
	return c.abort(r, true)
}

func (c *Core) abort(r *Record, wake bool) bool {
	for {
		r.mu.Lock()
		if r.flags&Sending != 0 {
			owner := c.t.Record(Slot(r.sendTo.Load()))
			r.mu.Unlock()

			g := c.t.lockPair(r, owner)
			if r.flags&Sending == 0 || Slot(r.sendTo.Load()) != owner.slot {
				g.Unlock()
				continue
			}
			c.t.Remove(&owner.senders, r)
			c.clearSending(r)
			r.replyPending = false
			if wake {
				c.wakeIfRunnable(r)
			}
			g.Unlock()
			return true
		}

		aborted := r.flags&Receiving != 0
		if aborted {
			r.flags &^= Receiving
			r.replyPending = false
			if wake {
				c.wakeIfRunnable(r)
			}
		}
		r.mu.Unlock()
		return aborted
	}
}

// Terminate tears down the live process e: its own pending IPC is aborted,
// every sender queued on it and every receiver waiting for it specifically
// is released with ErrNoSuchProcess, notification bits it raised are
// dropped, and the slot becomes free under a new generation.
func (c *Core) Terminate(e Endpoint) error {
	r, ok := c.t.Resolve(e)
	if !ok {
		return fmt.Errorf("terminate %v: %w", e, ErrNoSuchProcess)
	}
	// A process blocked in IPC is not on the ready set; aborting it
	// without a wake-up keeps it off.
	wasBlocked := c.abort(r, false)

	r.mu.Lock()
	if !r.live(e) {
		r.mu.Unlock()
		return fmt.Errorf("terminate %v: %w", e, ErrNoSuchProcess)
	}
	if r.flags == 0 && !wasBlocked {
		c.sched.RemoveFromRunnable(r)
	}
	r.flags |= Dead
	r.ep.Store(int64(None))
	r.mu.Unlock()

	c.releaseSenders(r, e)
	c.releaseWaiters(r, e)

	r.mu.Lock()
	r.gen = (r.gen + 1) % maxGeneration
	r.flags = SlotFree
	r.getFrom = None
	r.replyPending = false
	r.wakeErr = nil
	r.staged = Message{}
	for i := range r.notify {
		r.notify[i] = 0
	}
	r.kernelNotify = 0
	r.intPending, r.sigPending = 0, 0
	r.mu.Unlock()
	return nil
}

func (c *Core) releaseSenders(r *Record, e Endpoint) {
	for {
		r.mu.Lock()
		if r.senders.Empty() {
			r.mu.Unlock()
			return
		}
		s := c.t.at(r.senders.head)
		r.mu.Unlock()

		g := c.t.lockPair(r, s)
		if r.senders.head == linkTo(s) && Slot(s.sendTo.Load()) == r.slot {
			c.t.Remove(&r.senders, s)
			c.clearSending(s)
			s.replyPending = false
			s.wakeErr = fmt.Errorf("send to %v: %w", e, ErrNoSuchProcess)
			c.wakeIfRunnable(s)
		}
		g.Unlock()
	}
}

func (c *Core) releaseWaiters(r *Record, e Endpoint) {
	for i := range c.t.procs {
		x := &c.t.procs[i]
		if x == r {
			continue
		}
		x.mu.Lock()
		x.clearNotifyBit(r.slot)
		if x.flags&Receiving != 0 && x.getFrom == e {
			x.flags &^= Receiving
			x.replyPending = false
			x.wakeErr = fmt.Errorf("receive from %v: %w", e, ErrNoSuchProcess)
			c.wakeIfRunnable(x)
		}
		x.mu.Unlock()
	}
}

// clearSending drops r's wait-for edge. Caller holds r.mu.
func (c *Core) clearSending(r *Record) {
	r.flags &^= Sending
	r.setSendTo(NoSlot)
	c.t.edgeRemoved()
}

// wakeIfRunnable hands r to the scheduler once nothing blocks it.
// Caller holds r.mu.
func (c *Core) wakeIfRunnable(r *Record) {
	if r.flags == 0 {
		c.sched.MakeRunnable(r)
	}
}

// block adds f to r's flags, taking r off the ready set if it was on it.
// Caller holds r.mu.
func (c *Core) block(r *Record, f Flags) {
	if r.flags == 0 {
		c.sched.RemoveFromRunnable(r)
	}
	r.flags |= f
	r.wakeErr = nil
}
