package client

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/portal/internal/codec"
	"github.com/GriffinCanCode/portal/internal/config"
	"github.com/GriffinCanCode/portal/internal/feed"
	"github.com/GriffinCanCode/portal/internal/lifecycle"
	"github.com/GriffinCanCode/portal/internal/logging"
	"github.com/GriffinCanCode/portal/internal/monitoring"
	"github.com/GriffinCanCode/portal/internal/pipeline"
	"github.com/GriffinCanCode/portal/internal/sandbox"
	"github.com/GriffinCanCode/portal/internal/tracing"
	"github.com/GriffinCanCode/portal/internal/transport"
)

// Options carries settings that do not come from the environment.
type Options struct {
	// SVGPath, when set, receives the latest scene as SVG after every tick.
	SVGPath string
	// Roots replaces the certificate roots used to verify artifact servers.
	Roots *x509.CertPool
}

// Client wires the fetch pipeline, the background worker, the lifecycle
// manager, the tick loop and the scene feed together.
type Client struct {
	config   *config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer

	fetcher *transport.Fetcher
	loader  *sandbox.Loader
	inbox   *lifecycle.Inbox
	worker  *pipeline.Worker
	manager *lifecycle.Manager
	loop    *lifecycle.Loop
	feed    *feed.Server
}

// New builds a client from configuration. Nothing runs until Run.
func New(cfg *config.Config, logger *logging.Logger, opts Options) (*Client, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Initializing portal client",
		zap.Int("port", cfg.Transport.Port),
		zap.String("trust", cfg.Transport.Trust),
		zap.String("codec", cfg.Codec.Name),
		zap.Int("tick_rate", cfg.Loop.TickRate),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	c := &Client{
		config:   cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		tracer:   tracing.New("portal", logger.Component("trace")),
	}

	codecName, err := codec.ParseCodec(cfg.Codec.Name)
	if err != nil {
		c.tracer.Close()
		return nil, err
	}

	fetcher, err := c.newFetcher(opts.Roots)
	if err != nil {
		c.tracer.Close()
		return nil, err
	}
	c.fetcher = fetcher

	c.loader = sandbox.NewLoader(sandbox.Config{
		MemoryLimitPages: cfg.Sandbox.MemoryLimitPages,
		CallTimeout:      cfg.Sandbox.CallTimeout,
	}, logger)

	p := &pipeline.Pipeline{
		Fetcher: fetcher,
		Decoder: codec.Decoder{Codec: codecName, MaxBytes: cfg.Codec.MaxDecodedBytes},
		Loader:  c.loader,
		Metrics: metrics,
		Tracer:  c.tracer,
		Logger:  logger.Component("pipeline"),
	}

	c.inbox = lifecycle.NewInbox()
	c.worker = pipeline.NewWorker(p.Source(), c.inbox, pipeline.WorkerConfig{
		MaxConcurrent: cfg.Loop.MaxConcurrentLoads,
		Rate:          cfg.Loop.LoadRate,
		Burst:         cfg.Loop.LoadBurst,
	}, logger.Component("worker")).WithMetrics(metrics)
	c.manager = lifecycle.NewManager(c.inbox, logger.Component("lifecycle")).WithMetrics(metrics)

	var renderers []lifecycle.Renderer
	if cfg.Feed.Enabled {
		enc, err := feed.ParseEncoding(cfg.Feed.Encoding)
		if err != nil {
			c.closeLoaders()
			return nil, err
		}
		feedCfg := feed.DefaultConfig()
		feedCfg.Addr = cfg.Feed.Addr
		feedCfg.Encoding = enc
		feedCfg.Development = cfg.Logging.Development
		feedCfg.Tracer = c.tracer
		c.feed = feed.NewServer(feedCfg, c.worker, metrics, registry, logger.Component("feed"))
		renderers = append(renderers, c.feed)
	}
	if opts.SVGPath != "" {
		renderers = append(renderers, &SVGFile{Path: opts.SVGPath, Width: 800, Height: 600})
	}

	c.loop, err = lifecycle.NewLoop(c.manager, cfg.Loop.TickRate, logger.Component("loop"), renderers...)
	if err != nil {
		c.closeLoaders()
		return nil, err
	}

	return c, nil
}

func (c *Client) newFetcher(roots *x509.CertPool) (*transport.Fetcher, error) {
	trust, err := transport.ParseTrustPolicy(c.config.Transport.Trust)
	if err != nil {
		return nil, err
	}
	protocol, err := transport.ParseProtocol(c.config.Transport.Protocol)
	if err != nil {
		return nil, err
	}

	log := c.logger.Component("transport")
	fetcher, err := transport.NewFetcher(transport.Config{
		Protocol:    protocol,
		Port:        c.config.Transport.Port,
		Trust:       trust,
		CAFile:      c.config.Transport.CAFile,
		ALPN:        c.config.Transport.ALPN,
		DialTimeout: c.config.Transport.DialTimeout,
		ReadTimeout: c.config.Transport.ReadTimeout,
		MaxBytes:    c.config.Transport.MaxBytes,
		KeyLogFile:  c.config.Transport.KeyLogFile,
	}, roots, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	settings := transport.DefaultBreakerSettings()
	settings.OnStateChange = func(host string, from, to transport.CircuitState) {
		log.Info("Circuit state changed",
			zap.String("host", host),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return fetcher.WithBreaker(transport.NewBreaker(settings)), nil
}

// Submit requests a background load of host and returns its generation.
func (c *Client) Submit(host string) uint64 {
	return c.worker.Submit(host)
}

// Manager returns the lifecycle manager.
func (c *Client) Manager() *lifecycle.Manager {
	return c.manager
}

// Feed returns the scene feed, or nil when it is disabled.
func (c *Client) Feed() *feed.Server {
	return c.feed
}

// Step runs a single tick outside Run.
func (c *Client) Step(ctx context.Context) lifecycle.TickReport {
	return c.loop.Step(ctx)
}

// Run drives the tick loop and the feed until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.loop.Run(ctx)
	})
	if c.feed != nil {
		g.Go(func() error {
			return c.feed.ListenAndServe(ctx)
		})
	}
	return g.Wait()
}

// Close stops background loads and releases the active guest, any loaded
// guest not yet applied, and the runtime.
func (c *Client) Close() error {
	c.logger.Info("Shutting down client...")

	c.worker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	// Loads that finished after the last tick are still waiting in the inbox.
	for _, r := range c.inbox.Take() {
		if r.Guest == nil {
			continue
		}
		if err := r.Guest.Close(ctx); err != nil {
			c.logger.Error("Failed to close pending guest", zap.String("host", r.Host), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if err := c.manager.Close(ctx); err != nil {
		c.logger.Error("Failed to close active guest", zap.Error(err))
		errs = append(errs, err)
	}
	if err := c.loader.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := c.fetcher.Close(); err != nil {
		errs = append(errs, err)
	}
	c.tracer.Close()

	_ = c.logger.Sync()
	return errors.Join(errs...)
}

func (c *Client) closeLoaders() {
	_ = c.loader.Close(context.Background())
	_ = c.fetcher.Close()
	c.tracer.Close()
}
