package dispatch

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
)

var (
	// ErrBadAddress means the message buffer is not accessible to the caller.
	ErrBadAddress = errors.New("bad message address")
	// ErrNotImplemented means the operation code is unknown.
	ErrNotImplemented = errors.New("operation not implemented")
	// ErrCallDenied means the caller lacks the privilege for the call.
	ErrCallDenied = errors.New("call not permitted")
	// ErrBadCaller means the calling record failed its identity check.
	ErrBadCaller = errors.New("invalid caller")
)

// FatalError reports a failure that put the kernel into panic mode. It is
// returned rather than raised so the trap layer decides how to halt.
type FatalError struct {
	Caller kernel.Endpoint
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("kernel panic: caller %v: %s", e.Caller, e.Reason)
}

func (e *FatalError) Unwrap() error { return ErrBadCaller }

// ABI return codes.
const (
	OK          int32 = 0
	Suspend     int32 = -998
	EPERM       int32 = -1
	ESRCH       int32 = -3
	EWOULDBLOCK int32 = -11
	EFAULT      int32 = -14
	EINVAL      int32 = -22
	EDEADLK     int32 = -35
	ENOSYS      int32 = -38
)

var codeNames = map[int32]string{
	OK:          "OK",
	Suspend:     "SUSPEND",
	EPERM:       "EPERM",
	ESRCH:       "ESRCH",
	EWOULDBLOCK: "EWOULDBLOCK",
	EFAULT:      "EFAULT",
	EINVAL:      "EINVAL",
	EDEADLK:     "EDEADLK",
	ENOSYS:      "ENOSYS",
}

// CodeName returns the symbolic name of an ABI return code.
func CodeName(code int32) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("E%d", -code)
}

// Errno maps err to its negative ABI code; nil maps to OK.
func Errno(err error) int32 {
	switch {
	case err == nil:
		return OK
	case kernel.IsWouldBlock(err):
		return EWOULDBLOCK
	case errors.Is(err, kernel.ErrDeadlock):
		return EDEADLK
	case errors.Is(err, kernel.ErrNoSuchProcess):
		return ESRCH
	case errors.Is(err, ErrBadAddress):
		return EFAULT
	case errors.Is(err, ErrNotImplemented):
		return ENOSYS
	case errors.Is(err, ErrCallDenied), errors.Is(err, kernel.ErrNotReplyTarget):
		return EPERM
	default:
		return EINVAL
	}
}

// ReturnCode is the value a trap hands back to the calling process.
func ReturnCode(out kernel.Outcome, err error) int32 {
	if err != nil {
		return Errno(err)
	}
	if out == kernel.Suspended {
		return Suspend
	}
	return OK
}
