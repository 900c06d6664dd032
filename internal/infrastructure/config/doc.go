// Package config provides 12-factor configuration for the kernel daemon.
//
// Configuration is loaded from environment variables with sensible defaults.
//
// Configuration Sections:
//   - Kernel: table size, boot image, demo workload length
//   - Admin: admin HTTP listener
//   - Logging: log level, output format and error-log rate limit
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	table, err := kernel.NewTable(cfg.Kernel.Slots)
//
// Environment Variables:
//   - KERNEL_SLOTS, KERNEL_IMAGE, KERNEL_DEMO_ROUNDS
//   - ADMIN_ADDR, ADMIN_ENABLED
//   - LOG_LEVEL, LOG_DEV, ERROR_LOG_RPS, ERROR_LOG_BURST
package config
