// Package client assembles the portal client.
//
// Components, in data-flow order:
//   - transport.Fetcher (QUIC, per-host circuit breaker)
//   - codec.Decoder (brotli by default)
//   - sandbox.Loader (wazero, one runtime per guest)
//   - pipeline.Worker (background loads, generations)
//   - lifecycle.Manager and lifecycle.Loop (one active guest, fixed tick)
//   - feed.Server and SVGFile (renderers)
//
// Lifecycle:
//  1. New builds everything from config.Config
//  2. Submit queues loads (flags, stdin or POST /load)
//  3. Run ticks and serves the feed until the context ends
//  4. Close cancels pending loads and closes the active guest
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	c, err := client.New(cfg, logger, client.Options{})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	c.Submit("example.com")
//	return c.Run(ctx)
package client
