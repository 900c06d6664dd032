package kernel

import (
	"fmt"
	"sync"

	"code.hybscloud.com/atomix"
)

// Table owns every Process Record. Slots never move and the table never
// grows; every endpoint lookup goes through Resolve.
type Table struct {
	procs []Record

	// graph serializes the addition of wait-for edges.
	graph sync.Mutex
	// graphSeq is bumped after every wait-for edge removal.
	graphSeq atomix.Uint64
}

// NewTable creates a table of n free slots.
func NewTable(n int) (*Table, error) {
	if n < 2 || n > MaxSlots {
		return nil, fmt.Errorf("table size %d out of range [2, %d]: %w", n, MaxSlots, ErrBadArgument)
	}

	words := (n + 63) / 64
	bits := make([]uint64, n*words)

	t := &Table{procs: make([]Record, n)}
	for i := range t.procs {
		r := &t.procs[i]
		r.magic = recordMagic
		r.slot = Slot(i)
		r.flags = SlotFree
		r.getFrom = None
		r.ep.Store(int64(None))
		r.setSendTo(NoSlot)
		r.notify = bits[i*words : (i+1)*words : (i+1)*words]
	}
	return t, nil
}

// Size returns the number of slots.
func (t *Table) Size() int { return len(t.procs) }

// Record returns the record in slot s, or nil if s is out of range.
func (t *Table) Record(s Slot) *Record {
	if s < 0 || int(s) >= len(t.procs) {
		return nil
	}
	return &t.procs[s]
}

// Resolve returns the live process addressed by e. A stale endpoint, whose
// generation no longer matches its slot, resolves to nothing.
func (t *Table) Resolve(e Endpoint) (*Record, bool) {
	r := t.Record(e.Slot())
	if r == nil {
		return nil, false
	}
	if r.Endpoint() != e {
		return nil, false
	}
	return r, true
}

// Owns reports whether r is an intact record of this table.
func (t *Table) Owns(r *Record) bool {
	if r == nil || r.magic != recordMagic {
		return false
	}
	return t.Record(r.slot) == r
}

func (t *Table) at(l link) *Record { return &t.procs[l-1] }

func (t *Table) edgeRemoved() { t.graphSeq.Add(1) }
