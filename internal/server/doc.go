// Package server boots a kernel and runs it as a hosted daemon.
//
// Lifecycle:
//  1. Load the boot image (default, YAML or TOML)
//  2. Create the process table, the hosted scheduler and the dispatcher
//  3. Grant privileges and data segments, spawn every image process
//  4. Run one goroutine per process according to its role
//  5. Serve the admin surface until shutdown or a kernel panic
//
// Admin endpoints:
//   - GET /healthz: instance id, uptime, panic mode, IPC counters
//   - GET /procs: live processes and their IPC state
//   - GET /metrics: Prometheus metrics of this kernel
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//	err = srv.Run(ctx)
package server
