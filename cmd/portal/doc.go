// Package main is the entry point for the portal client.
//
// The client fetches a compressed WebAssembly guest from a host over QUIC,
// runs it in a sandbox and rebuilds a scene from the guest's drawing calls on
// every tick. Scenes go to the feed (HTTP and WebSocket) and optionally to an
// SVG file.
//
// Configuration:
//   - Environment variables (see internal/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Load a guest at startup and serve the feed on the default address
//	./portal --host example.com
//
//	# Local development server with a self-signed certificate
//	./portal --dev --insecure --host 127.0.0.1 --svg /tmp/scene.svg
//
//	# Type hosts interactively
//	./portal --stdin
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
