package kernel

// pairGuard holds the locks of up to two records, acquired in ascending
// slot order. It is the only way the core locks more than one record.
type pairGuard struct {
	first, second *Record
}

// lockPair locks a and b in slot order. a and b may be the same record.
func (t *Table) lockPair(a, b *Record) pairGuard {
	if a == b {
		a.mu.Lock()
		return pairGuard{first: a}
	}
	if b.slot < a.slot {
		a, b = b, a
	}
	a.mu.Lock()
	b.mu.Lock()
	return pairGuard{first: a, second: b}
}

// Unlock releases the guard's locks in reverse order.
func (g pairGuard) Unlock() {
	if g.second != nil {
		g.second.mu.Unlock()
	}
	g.first.mu.Unlock()
}
