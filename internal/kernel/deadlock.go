package kernel

import "code.hybscloud.com/spin"

// maxWalkRetries bounds how often a positive walk is repeated because
// edges were removed while it ran.
const maxWalkRetries = 8

// WouldDeadlock reports whether a blocking send from "from" to "to" would
// close a cycle of senders. It follows to's send target, then that
// target's, for at most one pass over the table, and never mutates state.
// Sending to oneself is a cycle of one.
//
// Edges are only added under the graph mutex, which send holds while it
// consults this predicate, so a negative answer stays true until the send
// commits. Edges may be removed concurrently: a positive answer is
// re-checked when the graph changed under the walk.
func (c *Core) WouldDeadlock(from, to *Record) bool {
	sw := spin.Wait{}
	for i := 0; ; i++ {
		seq := c.t.graphSeq.LoadAcquire()
		if !c.t.walk(from, to) {
			return false
		}
		if c.t.graphSeq.LoadAcquire() == seq || i == maxWalkRetries {
			return true
		}
		sw.Once()
	}
}

func (t *Table) walk(from, to *Record) bool {
	if from == to {
		return true
	}
	x := to
	for hops := 0; hops < len(t.procs); hops++ {
		next := Slot(x.sendTo.Load())
		if next == NoSlot {
			return false
		}
		x = &t.procs[next]
		if x == from {
			return true
		}
	}
	// A cycle that does not pass through from.
	return false
}
