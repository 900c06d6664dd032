package dispatch

import (
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
)

// Permissions decides whether caller may issue op against target.
type Permissions interface {
	CheckCall(caller *kernel.Record, op Op, target kernel.Endpoint) error
}

// AddressChecker decides whether a message at addr is accessible to caller.
type AddressChecker interface {
	CheckAddress(caller *kernel.Record, addr uint64) error
}

// AllowAll permits every call and every address.
type AllowAll struct{}

func (AllowAll) CheckCall(*kernel.Record, Op, kernel.Endpoint) error { return nil }

func (AllowAll) CheckAddress(*kernel.Record, uint64) error { return nil }

// Segment is a process's data segment.
type Segment struct {
	Base uint64
	Size uint64
}

// contains reports whether a whole message starting at addr fits.
func (s Segment) contains(addr uint64) bool {
	if addr < s.Base {
		return false
	}
	off := addr - s.Base
	return s.Size >= kernel.MessageSize && off <= s.Size-kernel.MessageSize
}

// SegmentChecker accepts a message address when the whole message lies
// inside the caller's data segment. Slots without a segment accept nothing.
type SegmentChecker struct {
	mu   sync.RWMutex
	segs []Segment
}

// NewSegmentChecker creates a checker for a table of n slots.
func NewSegmentChecker(n int) *SegmentChecker {
	return &SegmentChecker{segs: make([]Segment, n)}
}

// Set assigns the data segment of slot s.
func (c *SegmentChecker) Set(s kernel.Slot, seg Segment) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s < 0 || int(s) >= len(c.segs) {
		return fmt.Errorf("segment for slot %d: %w", s, kernel.ErrBadArgument)
	}
	if seg.Base+seg.Size < seg.Base {
		return fmt.Errorf("segment for slot %d wraps: %w", s, kernel.ErrBadArgument)
	}
	c.segs[s] = seg
	return nil
}

// Clear removes the data segment of slot s.
func (c *SegmentChecker) Clear(s kernel.Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s >= 0 && int(s) < len(c.segs) {
		c.segs[s] = Segment{}
	}
}

// CheckAddress implements AddressChecker.
func (c *SegmentChecker) CheckAddress(caller *kernel.Record, addr uint64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := caller.Slot()
	if int(s) >= len(c.segs) || !c.segs[s].contains(addr) {
		return fmt.Errorf("message at %#x for slot %d: %w", addr, s, ErrBadAddress)
	}
	return nil
}
