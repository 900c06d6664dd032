/*
Package monitoring provides metrics collection for the kernel.

# Overview

This package implements Prometheus-based metrics for IPC dispatch, the
hosted resumption layer and the admin HTTP surface. Every collector owns
its registry, so the admin /metrics endpoint serves exactly one kernel.

# Features

- IPC call counts by operation and outcome
- IPC error counts by operation and ABI code
- Parked hosted callers and end-to-end call latency
- Kernel panics and live process count
- Admin HTTP request metrics

All Record and Inc methods are safe on a nil *Metrics, which records
nothing.

# Usage

	metrics := monitoring.NewMetrics()

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	timer := monitoring.NewTimer(metrics, "sendrec")
	// ... perform call ...
	timer.Stop()
*/
package monitoring
