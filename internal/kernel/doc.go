// Package kernel implements the rendezvous message-passing core of the
// microkernel together with the process-table bookkeeping it depends on.
//
// The core is a small state machine over fixed Process Records:
//   - Runnable: no blocking flags are set
//   - Sending(target): blocked until target takes the staged message
//   - Receiving(filter): blocked until a matching message is delivered
//
// Operations:
//   - Send / SendNB: deliver directly to a waiting receiver, or block on the
//     receiver's pending-senders list
//   - Receive: take a pending notification or the oldest matching sender, or block
//   - Notify: set a pending bit on the destination and wake it if it waits for any
//   - Interrupt / Signal: the same for the kernel sources Hardware and System,
//     accumulating an interrupt or signal set
//   - SendRec: Send followed by Receive from the same endpoint, with the
//     receive half armed under the same locks as the delivery
//   - Reply: answer a caller waiting in SendRec, once
//   - Echo: hand the message straight back
//
// None of the operations ever blocks the calling goroutine. A Suspended outcome
// tells the outer trap layer not to resume the caller until the Scheduler hook
// MakeRunnable fires for it.
//
// Locking:
//   - every Record has its own mutex guarding its flags, filters and staged message
//   - a record's queue link is guarded by the lock of the list owner it is linked into
//     (the run queue's mutex while it is runnable)
//   - operations touching two records lock them in ascending slot order (pairGuard)
//   - adding a wait-for edge is serialized by the table's graph mutex, which is always
//     taken before any record lock
package kernel
