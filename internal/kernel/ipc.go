package kernel

import "fmt"

// Send delivers m from caller to dst. If dst is blocked receiving and
// accepts caller, the message is copied straight into dst and Delivered is
// returned. Otherwise a non-blocking send fails with ErrWouldBlock and a
// blocking one stages m in the caller, appends the caller to dst's
// pending-senders list and returns Suspended.
//
// Every failure is detected before any state changes.
func (c *Core) Send(caller *Record, dst Endpoint, m *Message, nonblocking bool) (Outcome, error) {
	return c.send(caller, dst, m, nonblocking, false)
}

// SendRec sends m to dst and then receives the reply from dst into m. The
// caller always ends up waiting with a reply continuation: when dst takes
// the message, directly or later from its pending list, the caller moves
// to Receiving(dst) under the same locks, so the reply can never be queued
// ahead of the receive half. The caller is made runnable once the reply
// has arrived; the outer layer never re-runs the send half.
func (c *Core) SendRec(caller *Record, dst Endpoint, m *Message) (Outcome, error) {
	return c.send(caller, dst, m, false, true)
}

// Receive takes a message for caller matching src (an endpoint, a kernel
// source or Any) into buf. Pending notifications are taken first, then the
// oldest matching pending sender. With nothing to take, a non-blocking
// receive fails with ErrWouldBlock and a blocking one returns Suspended;
// the message is later delivered into the caller's staged buffer.
func (c *Core) Receive(caller *Record, src Endpoint, buf *Message, nonblocking bool) (Outcome, error) {
	return c.receive(caller, src, buf, nonblocking)
}

// Reply hands m to to, which must be waiting in SendRec for a reply from
// replier. The continuation is single use: it is consumed by the first
// reply, or by an ordinary send from replier. Reply never blocks.
func (c *Core) Reply(replier *Record, to Endpoint, m *Message) error {
	if m == nil {
		return fmt.Errorf("reply: nil message: %w", ErrBadArgument)
	}
	d, ok := c.t.Resolve(to)
	if !ok {
		return fmt.Errorf("reply to %v: %w", to, ErrNoSuchProcess)
	}

	g := c.t.lockPair(replier, d)
	defer g.Unlock()

	if !d.live(to) {
		return fmt.Errorf("reply to %v: %w", to, ErrNoSuchProcess)
	}
	if d.flags&(Receiving|Sending) != Receiving || !d.replyPending {
		return fmt.Errorf("reply to %v: %w", to, ErrNotAwaitingReply)
	}
	from := replier.Endpoint()
	if d.getFrom != from {
		return fmt.Errorf("reply to %v from %v: %w", to, from, ErrNotReplyTarget)
	}

	d.staged = *m
	d.staged.Source = from
	d.flags &^= Receiving
	d.replyPending = false
	c.wakeIfRunnable(d)
	return nil
}

// Echo hands m straight back to caller, stamped with its own endpoint.
func (c *Core) Echo(caller *Record, m *Message) error {
	if m == nil {
		return fmt.Errorf("echo: nil message: %w", ErrBadArgument)
	}
	m.Source = caller.Endpoint()
	return nil
}

func (c *Core) send(caller *Record, dst Endpoint, m *Message, nonblocking, reply bool) (Outcome, error) {
	if m == nil {
		return Delivered, fmt.Errorf("send: nil message: %w", ErrBadArgument)
	}

	c.t.graph.Lock()
	defer c.t.graph.Unlock()

	d, ok := c.t.Resolve(dst)
	if !ok {
		return Delivered, fmt.Errorf("send to %v: %w", dst, ErrNoSuchProcess)
	}
	if c.WouldDeadlock(caller, d) {
		return Delivered, fmt.Errorf("send to %v: %w", dst, ErrDeadlock)
	}

	g := c.t.lockPair(caller, d)
	defer g.Unlock()

	if !d.live(dst) {
		return Delivered, fmt.Errorf("send to %v: %w", dst, ErrNoSuchProcess)
	}
	from := caller.Endpoint()

	if d.flags&(Receiving|Sending) == Receiving && d.accepts(from) {
		d.staged = *m
		d.staged.Source = from
		d.flags &^= Receiving
		d.replyPending = false
		c.wakeIfRunnable(d)
		if reply {
			// d was receiving, so it is on no pending list: nothing from it
			// can be waiting for the caller yet.
			caller.getFrom = dst
			caller.replyPending = true
			c.block(caller, Receiving)
			return Suspended, nil
		}
		return Delivered, nil
	}
	if nonblocking {
		return Delivered, fmt.Errorf("send to %v: %w", dst, ErrWouldBlock)
	}

	caller.staged = *m
	caller.staged.Source = from
	caller.replyPending = reply
	c.block(caller, Sending)
	caller.setSendTo(d.slot)
	c.t.PushBack(&d.senders, caller)
	return Suspended, nil
}

func (c *Core) receive(caller *Record, src Endpoint, buf *Message, nonblocking bool) (Outcome, error) {
	if buf == nil {
		return Delivered, fmt.Errorf("receive: nil buffer: %w", ErrBadArgument)
	}
	if src != Any && !src.Kernel() {
		if _, ok := c.t.Resolve(src); !ok {
			return Delivered, fmt.Errorf("receive from %v: %w", src, ErrNoSuchProcess)
		}
	}

	for {
		caller.mu.Lock()
		if c.takeNotification(caller, src, buf) {
			caller.mu.Unlock()
			return Delivered, nil
		}

		s := c.firstSender(caller, src)
		if s == nil {
			out, err := c.blockReceive(caller, src, nonblocking)
			caller.mu.Unlock()
			return out, err
		}
		caller.mu.Unlock()

		// The sender's lock may rank below ours: relock both in order and
		// make sure s is still the first match.
		g := c.t.lockPair(caller, s)
		if c.firstSender(caller, src) != s {
			g.Unlock()
			continue
		}
		c.pickUp(caller, s, buf)
		g.Unlock()
		return Delivered, nil
	}
}

// blockReceive parks caller waiting for src. Caller holds caller.mu.
func (c *Core) blockReceive(caller *Record, src Endpoint, nonblocking bool) (Outcome, error) {
	if src != Any && !src.Kernel() && c.t.Record(src.Slot()).Endpoint() != src {
		return Delivered, fmt.Errorf("receive from %v: %w", src, ErrNoSuchProcess)
	}
	if nonblocking {
		return Delivered, fmt.Errorf("receive from %v: %w", src, ErrWouldBlock)
	}
	caller.getFrom = src
	caller.replyPending = false
	c.block(caller, Receiving)
	return Suspended, nil
}

// firstSender returns the oldest pending sender of r matching src.
// Caller holds r.mu.
func (c *Core) firstSender(r *Record, src Endpoint) *Record {
	var found *Record
	c.t.Each(&r.senders, func(s *Record) bool {
		if src == Any || s.Endpoint() == src {
			found = s
			return false
		}
		return true
	})
	return found
}

// pickUp moves s's staged message into buf and releases s. A sender inside
// SendRec is turned into a receiver waiting for r's reply instead of being
// made runnable. Caller holds both locks.
func (c *Core) pickUp(r, s *Record, buf *Message) {
	*buf = s.staged
	c.t.Remove(&r.senders, s)
	c.clearSending(s)
	if s.replyPending {
		s.getFrom = r.Endpoint()
		s.flags |= Receiving
		return
	}
	c.wakeIfRunnable(s)
}
