// Package testutil provides testing utilities and helpers for kernel tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/dispatch"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
)

// MockScheduler is a mock implementation of kernel.Scheduler for testing.
type MockScheduler struct {
	mock.Mock
}

// MakeRunnable mocks the MakeRunnable method.
func (m *MockScheduler) MakeRunnable(r *kernel.Record) {
	m.Called(r.Slot())
}

// RemoveFromRunnable mocks the RemoveFromRunnable method.
func (m *MockScheduler) RemoveFromRunnable(r *kernel.Record) {
	m.Called(r.Slot())
}

// NewMockScheduler creates a mock scheduler with no expectations set.
func NewMockScheduler(t *testing.T) *MockScheduler {
	t.Helper()
	return new(MockScheduler)
}

// AllowAll makes every hook call succeed silently.
func (m *MockScheduler) AllowAll() *MockScheduler {
	m.On("MakeRunnable", mock.Anything).Maybe()
	m.On("RemoveFromRunnable", mock.Anything).Maybe()
	return m
}

// MockPermissions is a mock implementation of dispatch.Permissions.
type MockPermissions struct {
	mock.Mock
}

// CheckCall mocks the CheckCall method.
func (m *MockPermissions) CheckCall(caller *kernel.Record, op dispatch.Op, target kernel.Endpoint) error {
	args := m.Called(caller.Slot(), op, target)
	return args.Error(0)
}

// NewMockPermissions creates a mock that allows every call by default.
func NewMockPermissions(t *testing.T) *MockPermissions {
	t.Helper()
	m := new(MockPermissions)
	m.On("CheckCall", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

// MockAddressChecker is a mock implementation of dispatch.AddressChecker.
type MockAddressChecker struct {
	mock.Mock
}

// CheckAddress mocks the CheckAddress method.
func (m *MockAddressChecker) CheckAddress(caller *kernel.Record, addr uint64) error {
	args := m.Called(caller.Slot(), addr)
	return args.Error(0)
}

// Kernel bundles a table, its reference run queue and an IPC core.
type Kernel struct {
	Table *kernel.Table
	Sched *kernel.RunQueue
	Core  *kernel.Core
}

// NewKernel creates a kernel of n slots with the reference run queue.
func NewKernel(t *testing.T, n int) *Kernel {
	t.Helper()
	table, err := kernel.NewTable(n)
	require.NoError(t, err)
	sched := kernel.NewRunQueue(table)
	return &Kernel{
		Table: table,
		Sched: sched,
		Core:  kernel.NewCore(table, sched),
	}
}

// Spawn brings each slot to life and returns the records in order.
func (k *Kernel) Spawn(t *testing.T, slots ...kernel.Slot) []*kernel.Record {
	t.Helper()
	out := make([]*kernel.Record, len(slots))
	for i, s := range slots {
		r, err := k.Core.Spawn(s, "")
		require.NoError(t, err)
		out[i] = r
	}
	return out
}

// Msg builds a message of type typ with the given payload words.
func Msg(typ int32, words ...uint64) *kernel.Message {
	m := &kernel.Message{Type: typ}
	for i, w := range words {
		m.SetWord(i, w)
	}
	return m
}
