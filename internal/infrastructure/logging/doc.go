// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Logs go to stderr by default so stdout stays free for workload output.
// Components take a child logger with Named; the IPC core itself never
// logs, only the layers around it do. The level can be changed while the
// kernel runs, through SetLevel or the admin /loglevel route.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	logger.Named("dispatch").Debug("call failed", zap.Error(err))
package logging
