/*
Package tracing provides lightweight tracing for loads and feed requests.

# Overview

Every load is one trace: a "load" span with "fetch", "decode" and
"instantiate" children. Feed HTTP requests get a span each, and a trace
started by POST /load is carried into the background load, so the request
and the fetch it caused share a trace ID.

Finished spans are buffered and written by a collector goroutine as debug
log lines; there is no exporter.

# Usage

	tracer := tracing.New("portal", logger)
	defer tracer.Close()

	// HTTP middleware
	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "fetch")
	span.SetTag("host", host)
	data, err := fetch(ctx)
	tracer.End(span, err)

# Trace Format

Traces use standard HTTP headers for propagation:
  - X-Trace-ID: Unique identifier for entire request flow
  - X-Span-ID: Identifier for current operation
*/
package tracing
