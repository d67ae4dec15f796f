package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/portal/internal/client"
	"github.com/GriffinCanCode/portal/internal/config"
	"github.com/GriffinCanCode/portal/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment first
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags override environment values
	host := flag.String("host", "", "Host to load at startup")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (colored logs, debug level)")
	insecure := flag.Bool("insecure", cfg.Transport.Trust == "insecure", "Skip server certificate verification")
	feedAddr := flag.String("feed-addr", cfg.Feed.Addr, "Scene feed listen address (empty disables the feed)")
	tickRate := flag.Int("tick-rate", cfg.Loop.TickRate, "Ticks per second")
	port := flag.Int("port", cfg.Transport.Port, "Artifact server port")
	protocol := flag.String("protocol", cfg.Transport.Protocol, "Artifact transport: quic or webtransport")
	svgPath := flag.String("svg", "", "Write the latest scene to this SVG file every tick")
	stdin := flag.Bool("stdin", false, "Read hosts to load from stdin, one per line")
	flag.Parse()

	cfg.Logging.Development = *dev
	if *dev {
		cfg.Logging.Level = "debug"
	}
	if *insecure {
		cfg.Transport.Trust = "insecure"
	}
	cfg.Feed.Addr = *feedAddr
	cfg.Feed.Enabled = cfg.Feed.Enabled && *feedAddr != ""
	cfg.Loop.TickRate = *tickRate
	cfg.Transport.Port = *port
	cfg.Transport.Protocol = *protocol

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	c, err := client.New(cfg, logger, client.Options{SVGPath: *svgPath})
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *host != "" {
		c.Submit(*host)
	}
	if *stdin {
		go readHosts(ctx, os.Stdin, c, logger.Logger)
	}

	if err := c.Run(ctx); err != nil {
		logger.Error("Client stopped", zap.Error(err))
		return err
	}
	logger.Info("Shutting down gracefully...")
	return nil
}

// readHosts submits every non-empty line of r as a host to load.
func readHosts(ctx context.Context, r io.Reader, c *client.Client, logger *zap.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		host := strings.TrimSpace(scanner.Text())
		if host == "" {
			continue
		}
		gen := c.Submit(host)
		logger.Info("Load requested", zap.String("host", host), zap.Uint64("generation", gen))
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("Reading hosts from stdin failed", zap.Error(err))
	}
}
