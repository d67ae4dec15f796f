/*
Package monitoring provides Prometheus metrics for the portal client.

# Overview

Metrics cover the three places where things go wrong quietly: the load
pipeline (fetch, decode, instantiate), the guest (traps, malformed paths) and
the tick loop (queue sizes, scene sizes, tick latency). None of these failures
reach the user as errors, so the counters are how an operator notices them.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	timer := monitoring.NewTimer(metrics, "fetch")
	// ... fetch ...
	timer.Stop()

A nil *Metrics is valid and records nothing.

# Metrics Endpoint

The feed server exposes the registry:

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
