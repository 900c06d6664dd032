package kernel

import (
	"fmt"
	"math"
)

// Slot is an index into the process table.
type Slot int32

// NoSlot marks the absence of a slot.
const NoSlot Slot = -1

// Endpoint is the stable identity of a process: its slot plus the slot's
// reuse generation.
type Endpoint int32

const (
	// GenerationSize bounds the table size and separates generations.
	GenerationSize = 1 << 12
	// MaxSlots is the largest table a Table can hold.
	MaxSlots = GenerationSize

	maxGeneration = math.MaxInt32 / GenerationSize
)

const (
	// None is the endpoint of nothing.
	None Endpoint = -1
	// Any is the receive filter that matches every sender.
	Any Endpoint = -2
	// Hardware is the source of interrupt notifications.
	Hardware Endpoint = -3
	// System is the source of signal notifications.
	System Endpoint = -4
)

// Kernel reports whether e is one of the kernel's own notification sources.
func (e Endpoint) Kernel() bool { return e == Hardware || e == System }

// MakeEndpoint combines a generation and a slot.
func MakeEndpoint(gen uint32, s Slot) Endpoint {
	return Endpoint(int32(gen%maxGeneration)*GenerationSize + int32(s))
}

// Slot returns the slot encoded in e, or NoSlot for None, Any and the
// kernel sources.
func (e Endpoint) Slot() Slot {
	if e < 0 {
		return NoSlot
	}
	return Slot(int32(e) % GenerationSize)
}

// Generation returns the reuse generation encoded in e.
func (e Endpoint) Generation() uint32 {
	if e < 0 {
		return 0
	}
	return uint32(int32(e) / GenerationSize)
}

func (e Endpoint) String() string {
	switch e {
	case None:
		return "none"
	case Any:
		return "any"
	case Hardware:
		return "hardware"
	case System:
		return "system"
	}
	return fmt.Sprintf("%d(slot %d gen %d)", int32(e), e.Slot(), e.Generation())
}
