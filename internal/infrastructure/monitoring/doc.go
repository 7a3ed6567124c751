/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the backend
service, tracking HTTP requests, upstream LangSmith calls and span tree
reconstruction.

# Features

- HTTP request metrics (latency, throughput, size)
- Upstream call metrics (outcome, latency, retries)
- Response cache hit ratio and throttle wait times
- Span tree size and absorbed anomalies (duplicates, orphans, cycles)

All Record* methods are safe on a nil *Metrics, so components can run
without monitoring.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
