package kernel

import "encoding/binary"

const (
	// MessageSize is the fixed size of a message in a process's address space.
	MessageSize = 64
	// PayloadSize is the room left for operation-specific fields.
	PayloadSize = MessageSize - 8
	// PayloadWords is the number of 64-bit words in the payload.
	PayloadWords = PayloadSize / 8
)

// TypeNotify is the type bit carried by every notification message.
const TypeNotify int32 = 0x1000

// NotifyFrom returns the message type of a notification sent by slot s.
func NotifyFrom(s Slot) int32 { return TypeNotify | int32(s) }

// TypeKernelNotify marks notifications raised by the kernel itself.
const TypeKernelNotify int32 = TypeNotify | 0x2000

// NotifyFromKernel returns the message type of a notification from the
// kernel source src.
func NotifyFromKernel(src Endpoint) int32 { return TypeKernelNotify | int32(-src) }

// IsNotify reports whether t is a notification message type.
func IsNotify(t int32) bool { return t&TypeNotify != 0 }

// IsKernelNotify reports whether t is a notification from a kernel source.
func IsKernelNotify(t int32) bool { return t&TypeKernelNotify == TypeKernelNotify }

// Message is a fixed-layout IPC envelope. Source is always stamped by the
// kernel on delivery; whatever the sender put there is overwritten.
type Message struct {
	Source  Endpoint
	Type    int32
	Payload [PayloadSize]byte
}

// Word returns payload word i.
func (m *Message) Word(i int) uint64 {
	return binary.LittleEndian.Uint64(m.Payload[i*8:])
}

// SetWord stores v in payload word i.
func (m *Message) SetWord(i int, v uint64) {
	binary.LittleEndian.PutUint64(m.Payload[i*8:], v)
}

// IsNotify reports whether m is a notification.
func (m *Message) IsNotify() bool { return IsNotify(m.Type) }

// Notification fields, valid when IsNotify(m.Type).
const (
	notifyTimestampWord  = 0
	notifyBadgeWord      = 1
	notifyInterruptsWord = 2
	notifySigsetWord     = 3
)

// Timestamp returns the kernel time at which a notification was built.
func (m *Message) Timestamp() uint64 { return m.Word(notifyTimestampWord) }

// Badge returns the badge of a notification delivered immediately.
func (m *Message) Badge() uint32 { return uint32(m.Word(notifyBadgeWord)) }

// Interrupts returns the interrupt set of a notification from Hardware.
func (m *Message) Interrupts() uint64 { return m.Word(notifyInterruptsWord) }

// SigSet returns the signal set of a notification from System.
func (m *Message) SigSet() uint64 { return m.Word(notifySigsetWord) }

func buildNotify(m *Message, from Endpoint, s Slot, now uint64, badge uint32) {
	*m = Message{Source: from, Type: NotifyFrom(s)}
	m.SetWord(notifyTimestampWord, now)
	m.SetWord(notifyBadgeWord, uint64(badge))
}
