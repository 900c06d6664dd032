package kernel

import "sync"

// Scheduler is the narrow surface the core uses to tell the scheduler
// about blocking-flag changes. The core never looks at scheduling order.
type Scheduler interface {
	// MakeRunnable is called once r's flags have become zero.
	// It must be idempotent.
	MakeRunnable(r *Record)
	// RemoveFromRunnable is called when a runnable r gains a blocking flag.
	RemoveFromRunnable(r *Record)
}

// RunQueue is a single round-robin ready list threaded through the same
// queue link as the pending-senders lists. It is a reference Scheduler; the
// real policy lives outside the core.
type RunQueue struct {
	mu     sync.Mutex
	t      *Table
	ready  List
	queued []bool
}

// NewRunQueue creates an empty ready list over t.
func NewRunQueue(t *Table) *RunQueue {
	return &RunQueue{
		t:      t,
		queued: make([]bool, t.Size()),
	}
}

// MakeRunnable appends r to the ready list unless it is already there.
func (q *RunQueue) MakeRunnable(r *Record) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queued[r.slot] {
		return
	}
	q.t.PushBack(&q.ready, r)
	q.queued[r.slot] = true
}

// RemoveFromRunnable unlinks r from the ready list.
func (q *RunQueue) RemoveFromRunnable(r *Record) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.queued[r.slot] {
		return
	}
	q.t.Remove(&q.ready, r)
	q.queued[r.slot] = false
}

// Next rotates the ready list and returns the process at its head.
func (q *RunQueue) Next() (*Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.t.PopFront(&q.ready)
	if !ok {
		return nil, false
	}
	q.t.PushBack(&q.ready, r)
	return r, true
}

// Contains reports whether r is on the ready list.
func (q *RunQueue) Contains(r *Record) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued[r.slot]
}

// Len returns the number of ready processes.
func (q *RunQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.t.Len(&q.ready)
}
