package dispatch

import (
	"fmt"
	"strings"
)

// Op is an IPC operation code. The values are part of the trap ABI.
type Op int32

const (
	OpSend Op = iota + 1
	OpReceive
	OpSendRec
	OpNotify
	OpSendNB
	OpReply
	OpEcho
)

// Ops lists every known operation in code order.
var Ops = []Op{OpSend, OpReceive, OpSendRec, OpNotify, OpSendNB, OpReply, OpEcho}

var opNames = map[Op]string{
	OpSend:    "send",
	OpReceive: "receive",
	OpSendRec: "sendrec",
	OpNotify:  "notify",
	OpSendNB:  "sendnb",
	OpReply:   "reply",
	OpEcho:    "echo",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int32(o))
}

// Valid reports whether o is a known operation.
func (o Op) Valid() bool {
	_, ok := opNames[o]
	return ok
}

// SendsTo reports whether o delivers something to its target, as opposed
// to taking something from it. Reply is authorized by the caller's pending
// continuation instead.
func (o Op) SendsTo() bool {
	switch o {
	case OpSend, OpSendRec, OpNotify, OpSendNB:
		return true
	}
	return false
}

// NeedsMessage reports whether o requires a message buffer.
func (o Op) NeedsMessage() bool {
	return o.Valid() && o != OpNotify
}

// Targeted reports whether o names a single target endpoint. Receive
// takes a filter and Echo takes no target at all.
func (o Op) Targeted() bool {
	return o.Valid() && o != OpReceive && o != OpEcho
}

// ParseOp returns the operation named s, ignoring case.
func ParseOp(s string) (Op, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for op, name := range opNames {
		if name == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q: %w", s, ErrNotImplemented)
}
