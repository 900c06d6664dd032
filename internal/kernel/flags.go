package kernel

import "strings"

// Flags records every independent reason a process is not runnable.
// A process may run iff its Flags are zero.
type Flags uint32

const (
	Receiving Flags = 1 << iota
	Sending
	Signaled
	VMRequest
	PageFault
	Stopped
	Dead
	SlotFree
)

var flagNames = []struct {
	f    Flags
	name string
}{
	{Receiving, "RECEIVING"},
	{Sending, "SENDING"},
	{Signaled, "SIGNALED"},
	{VMRequest, "VM_REQUEST"},
	{PageFault, "PAGE_FAULT"},
	{Stopped, "STOPPED"},
	{Dead, "DEAD"},
	{SlotFree, "SLOT_FREE"},
}

// Runnable reports whether no blocking reason is set.
func (f Flags) Runnable() bool { return f == 0 }

func (f Flags) String() string {
	if f == 0 {
		return "RUNNABLE"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.f != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}
