// Package dispatch is the trap entry point of the kernel. It validates the
// caller, the message address and the caller's privileges, routes the call
// to the IPC core and maps the result to the ABI return codes.
package dispatch
