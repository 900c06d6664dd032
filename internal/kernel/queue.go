package kernel

// link is an intrusive list link: a slot index plus one, zero meaning nil.
// Indices into a fixed table are bounds-checked on every dereference.
type link int32

const nilLink link = 0

func linkTo(r *Record) link { return link(r.slot) + 1 }

// List is an intrusive singly linked list threaded through Record.next.
// The zero value is an empty list. A record is on at most one list at a
// time. Every operation assumes the caller holds the lock covering the list
// and each record linked into it; none of them allocates.
type List struct {
	head link
}

// Empty reports whether l has no members.
func (l *List) Empty() bool { return l.head == nilLink }

// PushFront inserts r at the head of l in O(1).
func (t *Table) PushFront(l *List, r *Record) {
	r.next = l.head
	l.head = linkTo(r)
}

// PushBack appends r at the tail of l. It walks the list through the slot
// that holds each reference, so an empty list needs no special case.
func (t *Table) PushBack(l *List, r *Record) {
	xpp := &l.head
	for *xpp != nilLink {
		xpp = &t.at(*xpp).next
	}
	*xpp = linkTo(r)
	r.next = nilLink
}

// PopFront removes and returns the head of l.
func (t *Table) PopFront(l *List) (*Record, bool) {
	if l.head == nilLink {
		return nil, false
	}
	r := t.at(l.head)
	l.head = r.next
	r.next = nilLink
	return r, true
}

// Remove unlinks r from l. Head, interior and tail members take the same
// path. It reports whether r was present.
func (t *Table) Remove(l *List, r *Record) bool {
	want := linkTo(r)
	xpp := &l.head
	for *xpp != nilLink {
		if *xpp == want {
			*xpp = r.next
			r.next = nilLink
			return true
		}
		xpp = &t.at(*xpp).next
	}
	return false
}

// Contains reports whether r is on l.
func (t *Table) Contains(l *List, r *Record) bool {
	want := linkTo(r)
	for x := l.head; x != nilLink; x = t.at(x).next {
		if x == want {
			return true
		}
	}
	return false
}

// Len counts the members of l.
func (t *Table) Len(l *List) int {
	n := 0
	for x := l.head; x != nilLink; x = t.at(x).next {
		n++
	}
	return n
}

// Each calls fn for every member of l in list order until fn returns false.
func (t *Table) Each(l *List, fn func(*Record) bool) {
	for x := l.head; x != nilLink; {
		r := t.at(x)
		x = r.next
		if !fn(r) {
			return
		}
	}
}
