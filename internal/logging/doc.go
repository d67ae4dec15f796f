// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Every failed fetch, decode, load or guest call ends in one structured log
// line rather than a user-visible error, so the log is the primary diagnostic
// surface of the client.
//
// Child loggers:
//   - Component(name): one per subsystem (transport, sandbox, lifecycle, feed)
//   - Guest(id): receives the guest's print() output, tagged with the instance
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Fetching artifact", zap.String("host", host))
//	logger.Warn("Load failed", zap.Error(err))
package logging
