package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// wakeSched is a RunQueue that also signals a per-slot channel whenever a
// process becomes runnable, standing in for the trap layer.
type wakeSched struct {
	*RunQueue
	wake []chan struct{}
}

func newWakeSched(t *Table) *wakeSched {
	s := &wakeSched{RunQueue: NewRunQueue(t), wake: make([]chan struct{}, t.Size())}
	for i := range s.wake {
		s.wake[i] = make(chan struct{}, 1)
	}
	return s
}

func (s *wakeSched) MakeRunnable(r *Record) {
	s.RunQueue.MakeRunnable(r)
	select {
	case s.wake[r.Slot()] <- struct{}{}:
	default:
	}
}

func (s *wakeSched) drain(r *Record) {
	select {
	case <-s.wake[r.Slot()]:
	default:
	}
}

type fixture struct {
	table *Table
	sched *wakeSched
	core  *Core
}

func newFixture(t *testing.T, slots int) *fixture {
	t.Helper()
	table, err := NewTable(slots)
	require.NoError(t, err)
	sched := newWakeSched(table)
	return &fixture{
		table: table,
		sched: sched,
		core:  NewCore(table, sched, WithClock(func() uint64 { return 42 })),
	}
}

func (f *fixture) spawn(t *testing.T, s Slot) *Record {
	t.Helper()
	r, err := f.core.Spawn(s, "")
	require.NoError(t, err)
	f.sched.drain(r)
	return r
}

func msg(typ int32, words ...uint64) *Message {
	m := &Message{Type: typ}
	for i, w := range words {
		m.SetWord(i, w)
	}
	return m
}

// checkReadyInvariant asserts that every live process is on the ready list
// iff its flags are zero.
func (f *fixture) checkReadyInvariant(t *testing.T) {
	t.Helper()
	for i := 0; i < f.table.Size(); i++ {
		r := f.table.Record(Slot(i))
		st := r.State()
		if st.Endpoint == None {
			continue
		}
		require.Equal(t, st.Flags == 0, f.sched.Contains(r), "slot %d flags %v", i, st.Flags)
	}
}

// checkSenderInvariant asserts that pending lists hold exactly the
// processes sending to their owner.
func (f *fixture) checkSenderInvariant(t *testing.T) {
	t.Helper()
	for i := 0; i < f.table.Size(); i++ {
		owner := f.table.Record(Slot(i))
		owner.mu.Lock()
		seen := map[Slot]bool{}
		f.table.Each(&owner.senders, func(s *Record) bool {
			require.False(t, seen[s.Slot()], "duplicate sender %d on %d", s.Slot(), i)
			seen[s.Slot()] = true
			require.Equal(t, Slot(i), Slot(s.sendTo.Load()))
			return true
		})
		owner.mu.Unlock()
	}
	for i := 0; i < f.table.Size(); i++ {
		st := f.table.Record(Slot(i)).State()
		if st.Flags&Sending == 0 {
			require.Equal(t, NoSlot, st.SendTo)
			continue
		}
		require.NotEqual(t, Slot(i), st.SendTo)
		owner := f.table.Record(st.SendTo)
		owner.mu.Lock()
		onList := f.table.Contains(&owner.senders, f.table.Record(Slot(i)))
		owner.mu.Unlock()
		require.True(t, onList, "slot %d sending but not queued on %d", i, st.SendTo)
		require.Zero(t, st.Flags&Receiving, "slot %d both sending and receiving", i)
	}
}
