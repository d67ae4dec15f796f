package sandbox

import "time"

// Config holds sandbox limits.
type Config struct {
	// MemoryLimitPages caps linear memory in 64 KiB pages. Zero uses the
	// wazero default of 65536 pages (4 GiB).
	MemoryLimitPages uint32
	// CallTimeout bounds each setup/update call. Zero disables the bound.
	CallTimeout time.Duration
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MemoryLimitPages: 256,
		CallTimeout:      time.Second,
	}
}
