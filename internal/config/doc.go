// Package config provides 12-factor configuration management for the portal client.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags override environment variables in cmd/portal and cmd/portal-serve.
//
// Configuration Sections:
//   - Transport: QUIC fetch settings (port, trust policy, timeouts, size cap)
//   - Codec: artifact compression codec and decoded size cap
//   - Sandbox: guest memory limit and per-call timeout
//   - Loop: tick rate and load worker limits
//   - Feed: scene feed server for external renderers
//   - Logging: Log level and output format
//   - Serve: development artifact server
//
// The transport trust policy defaults to "verify". Skipping certificate
// validation ("insecure") is a development posture and has to be selected
// explicitly.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Fetching from port %d\n", cfg.Transport.Port)
package config
