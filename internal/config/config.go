package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all client configuration.
type Config struct {
	Transport TransportConfig
	Codec     CodecConfig
	Sandbox   SandboxConfig
	Loop      LoopConfig
	Feed      FeedConfig
	Logging   LogConfig
	Serve     ServeConfig
}

// TransportConfig holds the artifact fetch settings.
type TransportConfig struct {
	Protocol    string        `envconfig:"PORTAL_PROTOCOL" default:"quic"`
	Port        int           `envconfig:"PORTAL_PORT" default:"4433"`
	Trust       string        `envconfig:"PORTAL_TRUST" default:"verify"`
	CAFile      string        `envconfig:"PORTAL_CA_FILE" default:""`
	ALPN        string        `envconfig:"PORTAL_ALPN" default:"portal-wasm"`
	DialTimeout time.Duration `envconfig:"PORTAL_DIAL_TIMEOUT" default:"10s"`
	ReadTimeout time.Duration `envconfig:"PORTAL_READ_TIMEOUT" default:"30s"`
	MaxBytes    int64         `envconfig:"PORTAL_MAX_ARTIFACT_BYTES" default:"67108864"`
	KeyLogFile  string        `envconfig:"PORTAL_KEYLOG_FILE" default:""`
}

// CodecConfig holds artifact decompression settings.
type CodecConfig struct {
	Name            string `envconfig:"PORTAL_CODEC" default:"brotli"`
	MaxDecodedBytes int64  `envconfig:"PORTAL_MAX_DECODED_BYTES" default:"134217728"`
}

// SandboxConfig holds guest runtime limits.
type SandboxConfig struct {
	MemoryLimitPages uint32        `envconfig:"PORTAL_MEMORY_LIMIT_PAGES" default:"256"`
	CallTimeout      time.Duration `envconfig:"PORTAL_CALL_TIMEOUT" default:"1s"`
}

// LoopConfig holds tick loop and load worker settings.
type LoopConfig struct {
	TickRate           int     `envconfig:"PORTAL_TICK_RATE" default:"60"`
	MaxConcurrentLoads int64   `envconfig:"PORTAL_MAX_CONCURRENT_LOADS" default:"4"`
	LoadRate           float64 `envconfig:"PORTAL_LOAD_RATE" default:"2"`
	LoadBurst          int     `envconfig:"PORTAL_LOAD_BURST" default:"4"`
}

// FeedConfig holds the renderer-facing scene feed settings.
type FeedConfig struct {
	Enabled  bool   `envconfig:"PORTAL_FEED_ENABLED" default:"true"`
	Addr     string `envconfig:"PORTAL_FEED_ADDR" default:"127.0.0.1:8080"`
	Encoding string `envconfig:"PORTAL_FEED_ENCODING" default:"json"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// ServeConfig holds the development artifact server settings.
type ServeConfig struct {
	Addr     string `envconfig:"PORTAL_SERVE_ADDR" default:":4433"`
	CertFile string `envconfig:"PORTAL_SERVE_CERT" default:""`
	KeyFile  string `envconfig:"PORTAL_SERVE_KEY" default:""`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Protocol:    "quic",
			Port:        4433,
			Trust:       "verify",
			ALPN:        "portal-wasm",
			DialTimeout: 10 * time.Second,
			ReadTimeout: 30 * time.Second,
			MaxBytes:    64 << 20,
		},
		Codec: CodecConfig{
			Name:            "brotli",
			MaxDecodedBytes: 128 << 20,
		},
		Sandbox: SandboxConfig{
			MemoryLimitPages: 256,
			CallTimeout:      time.Second,
		},
		Loop: LoopConfig{
			TickRate:           60,
			MaxConcurrentLoads: 4,
			LoadRate:           2,
			LoadBurst:          4,
		},
		Feed: FeedConfig{
			Enabled:  true,
			Addr:     "127.0.0.1:8080",
			Encoding: "json",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Serve: ServeConfig{
			Addr: ":4433",
		},
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Transport.Trust {
	case "verify", "insecure":
	default:
		return fmt.Errorf("invalid PORTAL_TRUST %q: want verify or insecure", c.Transport.Trust)
	}
	switch c.Transport.Protocol {
	case "quic", "webtransport":
	default:
		return fmt.Errorf("invalid PORTAL_PROTOCOL %q: want quic or webtransport", c.Transport.Protocol)
	}
	if c.Transport.Port <= 0 || c.Transport.Port > 65535 {
		return fmt.Errorf("invalid PORTAL_PORT %d", c.Transport.Port)
	}
	if c.Loop.TickRate <= 0 {
		return fmt.Errorf("invalid PORTAL_TICK_RATE %d", c.Loop.TickRate)
	}
	if c.Loop.MaxConcurrentLoads <= 0 {
		return fmt.Errorf("invalid PORTAL_MAX_CONCURRENT_LOADS %d", c.Loop.MaxConcurrentLoads)
	}
	switch c.Feed.Encoding {
	case "json", "cbor":
	default:
		return fmt.Errorf("invalid PORTAL_FEED_ENCODING %q: want json or cbor", c.Feed.Encoding)
	}
	return nil
}
