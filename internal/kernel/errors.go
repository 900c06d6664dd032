package kernel

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

var (
	// ErrNoSuchProcess means an endpoint does not resolve to a live process.
	ErrNoSuchProcess = errors.New("no such process")
	// ErrDeadlock means blocking would close a cycle of senders.
	ErrDeadlock = errors.New("send would deadlock")
	// ErrBadArgument means a malformed request, such as a nil buffer.
	ErrBadArgument = errors.New("invalid argument")
	// ErrNotAwaitingReply means Reply targeted a process that is not waiting
	// in SendRec for a reply.
	ErrNotAwaitingReply = fmt.Errorf("not awaiting a reply: %w", ErrBadArgument)
	// ErrNotReplyTarget means Reply came from a process other than the one
	// the SendRec was addressed to.
	ErrNotReplyTarget = errors.New("not the reply target")
	// ErrSlotInUse means Spawn targeted an occupied slot.
	ErrSlotInUse = errors.New("slot in use")
	// ErrWouldBlock means a non-blocking request could not complete immediately.
	// It is a control-flow signal: iox.IsWouldBlock recognises it.
	ErrWouldBlock = fmt.Errorf("ipc: %w", iox.ErrWouldBlock)
)

// IsWouldBlock reports whether err indicates a non-blocking request would block.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}
