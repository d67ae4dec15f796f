// Package feed serves the current scene to external renderers.
//
// Routes:
//   - GET  /health     liveness and frame counters
//   - GET  /scene      latest frame as JSON or CBOR (?format= or Accept)
//   - GET  /scene.svg  latest frame rendered as SVG
//   - GET  /stream     WebSocket; one message per tick, newest frame wins
//   - POST /load       {"host": "..."} starts a background load
//   - GET  /metrics    Prometheus metrics
//
// Server implements lifecycle.Renderer, so the tick loop publishes into it
// directly.
package feed
