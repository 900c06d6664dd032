// Package priv holds per-process IPC privileges: which operations a
// process may trap with and which slots it may deliver to.
package priv

import (
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/dispatch"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
)

// Grant describes the privileges of one process.
type Grant struct {
	// Traps lists the operations the process may use.
	Traps []dispatch.Op
	// SendTo lists the slots the process may send or notify.
	SendTo []kernel.Slot
	// SendToAll allows every slot as a target.
	SendToAll bool
}

type entry struct {
	traps  uint32
	sendTo []uint64
}

// Table is the privilege table. A slot without a grant may do nothing.
type Table struct {
	mu      sync.RWMutex
	entries []entry
}

// NewTable creates an empty privilege table for n slots.
func NewTable(n int) *Table {
	words := (n + 63) / 64
	t := &Table{entries: make([]entry, n)}
	for i := range t.entries {
		t.entries[i].sendTo = make([]uint64, words)
	}
	return t
}

// Set replaces the privileges of slot s.
func (t *Table) Set(s kernel.Slot, g Grant) error {
	if s < 0 || int(s) >= len(t.entries) {
		return fmt.Errorf("grant for slot %d: %w", s, kernel.ErrBadArgument)
	}

	var traps uint32
	for _, op := range g.Traps {
		if !op.Valid() {
			return fmt.Errorf("grant for slot %d: %v: %w", s, op, dispatch.ErrNotImplemented)
		}
		traps |= 1 << uint(op)
	}
	sendTo := make([]uint64, len(t.entries[s].sendTo))
	if g.SendToAll {
		for i := 0; i < len(t.entries); i++ {
			sendTo[i/64] |= 1 << (uint(i) % 64)
		}
	}
	for _, dst := range g.SendTo {
		if dst < 0 || int(dst) >= len(t.entries) {
			return fmt.Errorf("grant for slot %d: target slot %d: %w", s, dst, kernel.ErrBadArgument)
		}
		sendTo[dst/64] |= 1 << (uint(dst) % 64)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[s] = entry{traps: traps, sendTo: sendTo}
	return nil
}

// Revoke drops every privilege of slot s.
func (t *Table) Revoke(s kernel.Slot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s < 0 || int(s) >= len(t.entries) {
		return
	}
	e := &t.entries[s]
	e.traps = 0
	for i := range e.sendTo {
		e.sendTo[i] = 0
	}
}

// CheckCall implements dispatch.Permissions. The operation must be in the
// caller's trap mask and, for operations that deliver to the target, the
// target's slot must be in its send-to mask. Receive may name any endpoint.
func (t *Table) CheckCall(caller *kernel.Record, op dispatch.Op, target kernel.Endpoint) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := caller.Slot()
	if int(s) >= len(t.entries) {
		return fmt.Errorf("slot %d has no privileges: %w", s, dispatch.ErrCallDenied)
	}
	e := &t.entries[s]
	if e.traps&(1<<uint(op)) == 0 {
		return fmt.Errorf("slot %d may not %v: %w", s, op, dispatch.ErrCallDenied)
	}
	if !op.SendsTo() {
		return nil
	}
	dst := target.Slot()
	if dst == kernel.NoSlot || int(dst) >= len(t.entries) {
		// Let the core report the bad target.
		return nil
	}
	if e.sendTo[dst/64]&(1<<(uint(dst)%64)) == 0 {
		return fmt.Errorf("slot %d may not %v slot %d: %w", s, op, dst, dispatch.ErrCallDenied)
	}
	return nil
}
