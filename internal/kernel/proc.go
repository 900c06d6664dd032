package kernel

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// recordMagic tags every Record owned by a Table.
const recordMagic uint32 = 0x1bc0de55

// Record is the fixed per-process state. Records never move; a Table owns
// all of them and the IPC Core only mutates records that are live.
type Record struct {
	mu sync.Mutex

	magic uint32
	slot  Slot
	gen   uint32
	name  string

	// ep is the live endpoint, None while the slot is free or dying.
	ep atomix.Int64
	// sendTo is the slot this process is blocked sending to, NoSlot otherwise.
	// It is read without the record lock by the deadlock detector.
	sendTo atomix.Int64

	flags   Flags
	getFrom Endpoint
	staged  Message

	// replyPending is set while a SendRec is in progress; notifications do
	// not interrupt it and a pickup turns Sending into Receiving.
	replyPending bool
	// wakeErr is the result handed to the caller when a blocked operation
	// was ended by teardown rather than delivery.
	wakeErr error

	// senders is the list of records blocked sending to this one.
	senders List
	// next is the single queue link, guarded by the owner of the list it is on.
	next link

	// notify holds one pending bit per notifier slot.
	notify []uint64
	// kernelNotify holds the pending bits of the kernel sources, and the
	// interrupt and signal sets their next notification carries.
	kernelNotify kernelSet
	intPending   uint64
	sigPending   uint64
}

// Slot returns the record's table index.
func (r *Record) Slot() Slot { return r.slot }

// Endpoint returns the live endpoint of the record, or None.
func (r *Record) Endpoint() Endpoint { return Endpoint(r.ep.Load()) }

// Name returns the name given at spawn.
func (r *Record) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// State is a consistent copy of a record's IPC state.
type State struct {
	Endpoint     Endpoint
	Flags        Flags
	SendTo       Slot
	GetFrom      Endpoint
	ReplyPending bool
	Staged       Message
}

// State returns a consistent snapshot of r.
func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		Endpoint:     r.Endpoint(),
		Flags:        r.flags,
		SendTo:       Slot(r.sendTo.Load()),
		GetFrom:      r.getFrom,
		ReplyPending: r.replyPending,
		Staged:       r.staged,
	}
}

// Flags returns the current blocking flags.
func (r *Record) Flags() Flags {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags
}

// NotifyPending reports whether slot s has a pending notification for r.
func (r *Record) NotifyPending(s Slot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notifyBit(s)
}

// live reports whether e is still the record's endpoint. Caller holds r.mu.
func (r *Record) live(e Endpoint) bool {
	return e >= 0 && r.Endpoint() == e && r.flags&(SlotFree|Dead) == 0
}

// accepts reports whether r, blocked receiving, takes a message from e.
func (r *Record) accepts(e Endpoint) bool {
	return r.getFrom == Any || r.getFrom == e
}

func (r *Record) notifyBit(s Slot) bool {
	return r.notify[s/64]&(1<<(uint(s)%64)) != 0
}

func (r *Record) setNotifyBit(s Slot) {
	r.notify[s/64] |= 1 << (uint(s) % 64)
}

func (r *Record) clearNotifyBit(s Slot) {
	r.notify[s/64] &^= 1 << (uint(s) % 64)
}

// InterruptsPending returns the interrupts not yet reported to r.
func (r *Record) InterruptsPending() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intPending
}

// SignalsPending returns the signals not yet reported to r.
func (r *Record) SignalsPending() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sigPending
}

func (r *Record) setSendTo(s Slot) { r.sendTo.Store(int64(s)) }
