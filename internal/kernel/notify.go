package kernel

import (
	"fmt"
	"math/bits"
)

// Notify raises caller's pending bit in dst. It never blocks or queues the
// caller and fails only when dst does not resolve. If dst is waiting for
// any message, or for one from caller, and is not inside SendRec, the bit
// is consumed at once: a notification message carrying badge is built in
// dst and dst is woken. A deferred notification loses its badge.
func (c *Core) Notify(caller *Record, dst Endpoint, badge uint32) error {
	d, ok := c.t.Resolve(dst)
	if !ok {
		return fmt.Errorf("notify %v: %w", dst, ErrNoSuchProcess)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.live(dst) {
		return fmt.Errorf("notify %v: %w", dst, ErrNoSuchProcess)
	}
	from := caller.Endpoint()
	d.setNotifyBit(caller.slot)

	if d.flags&(Receiving|Sending) == Receiving && !d.replyPending && d.accepts(from) {
		d.clearNotifyBit(caller.slot)
		buildNotify(&d.staged, from, caller.slot, c.now(), badge)
		d.flags &^= Receiving
		c.wakeIfRunnable(d)
	}
	return nil
}

// kernelSet holds one pending bit per kernel source.
type kernelSet uint8

const (
	pendingHardware kernelSet = 1 << iota
	pendingSystem
)

func kernelBit(src Endpoint) kernelSet {
	if src == Hardware {
		return pendingHardware
	}
	return pendingSystem
}

// Interrupt adds irqs to dst's pending interrupt set and notifies dst from
// Hardware. The set travels with the notification and is then cleared.
func (c *Core) Interrupt(dst Endpoint, irqs uint64) error {
	return c.kernelNotify(Hardware, dst, irqs)
}

// Signal adds sigs to dst's pending signal set and notifies dst from
// System.
func (c *Core) Signal(dst Endpoint, sigs uint64) error {
	return c.kernelNotify(System, dst, sigs)
}

// KernelNotify notifies dst from the kernel source src without adding to
// its pending sets. Delivery follows Notify: at once if dst is waiting for
// any message or for one from src and is not inside SendRec, else the bit
// stays pending until dst receives.
func (c *Core) KernelNotify(src, dst Endpoint) error {
	return c.kernelNotify(src, dst, 0)
}

func (c *Core) kernelNotify(src, dst Endpoint, set uint64) error {
	if !src.Kernel() {
		return fmt.Errorf("kernel notify from %v: %w", src, ErrBadArgument)
	}
	d, ok := c.t.Resolve(dst)
	if !ok {
		return fmt.Errorf("kernel notify %v: %w", dst, ErrNoSuchProcess)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.live(dst) {
		return fmt.Errorf("kernel notify %v: %w", dst, ErrNoSuchProcess)
	}
	if src == Hardware {
		d.intPending |= set
	} else {
		d.sigPending |= set
	}
	d.kernelNotify |= kernelBit(src)

	if d.flags&(Receiving|Sending) == Receiving && !d.replyPending && d.accepts(src) {
		c.buildKernelNotify(d, src, &d.staged)
		d.flags &^= Receiving
		c.wakeIfRunnable(d)
	}
	return nil
}

// buildKernelNotify consumes r's pending notification from src into m,
// handing over and clearing the matching pending set. Caller holds r.mu.
func (c *Core) buildKernelNotify(r *Record, src Endpoint, m *Message) {
	r.kernelNotify &^= kernelBit(src)
	buildNotify(m, src, NoSlot, c.now(), 0)
	m.Type = NotifyFromKernel(src)
	if src == Hardware {
		m.SetWord(notifyInterruptsWord, r.intPending)
		r.intPending = 0
	} else {
		m.SetWord(notifySigsetWord, r.sigPending)
		r.sigPending = 0
	}
}

// takeNotification delivers the lowest pending notification of r that
// matches src. Kernel sources come before every slot. Caller holds r.mu.
func (c *Core) takeNotification(r *Record, src Endpoint, buf *Message) bool {
	for _, k := range [...]Endpoint{Hardware, System} {
		if r.kernelNotify&kernelBit(k) != 0 && (src == Any || src == k) {
			c.buildKernelNotify(r, k, buf)
			return true
		}
	}
	if src.Kernel() {
		return false
	}
	for w, word := range r.notify {
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			word &^= 1 << bit
			s := Slot(w*64 + bit)

			from := c.t.procs[s].Endpoint()
			if from == None {
				r.clearNotifyBit(s)
				continue
			}
			if src != Any && src != from {
				continue
			}
			r.clearNotifyBit(s)
			buildNotify(buf, from, s, c.now(), 0)
			return true
		}
	}
	return false
}
