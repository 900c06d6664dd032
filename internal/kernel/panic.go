package kernel

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

// PanicInfo describes the event that put the kernel into panic mode.
type PanicInfo struct {
	Caller Endpoint
	Reason string
	Stack  []byte
}

type panicState struct {
	active  atomix.Bool
	once    sync.Once
	handler atomic.Value // func(PanicInfo)
}

// InPanicMode reports whether a fatal condition has been raised.
func (c *Core) InPanicMode() bool {
	return c.panic.active.Load()
}

// SetPanicHandler installs the handler run on the first kernel panic.
// It must not panic.
func (c *Core) SetPanicHandler(fn func(PanicInfo)) {
	c.panic.handler.Store(fn)
}

// Panic records a fatal condition. The kernel stays in panic mode; only the
// first call runs the handler. It returns instead of unwinding so bare-metal
// builds without unwinding can halt from the handler.
func (c *Core) Panic(info PanicInfo) {
	c.panic.once.Do(func() {
		c.panic.active.Store(true)
		info.Stack = debug.Stack()
		if v := c.panic.handler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
}
