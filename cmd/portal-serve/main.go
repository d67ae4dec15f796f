package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/portal/internal/codec"
	"github.com/GriffinCanCode/portal/internal/config"
	"github.com/GriffinCanCode/portal/internal/logging"
	"github.com/GriffinCanCode/portal/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portal-serve: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadOrDefault()

	wasmPath := flag.String("wasm", "", "Guest module to serve (required)")
	codecName := flag.String("codec", cfg.Codec.Name, "Compression applied to the guest: brotli, zstd, gzip, lz4 or none")
	addr := flag.String("addr", cfg.Serve.Addr, "UDP listen address")
	certFile := flag.String("cert", cfg.Serve.CertFile, "TLS certificate (PEM); self-signed when empty")
	keyFile := flag.String("key", cfg.Serve.KeyFile, "TLS private key (PEM)")
	alpn := flag.String("alpn", cfg.Transport.ALPN, "Application protocol (quic only)")
	protocolName := flag.String("protocol", cfg.Transport.Protocol, "Transport: quic or webtransport")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (colored logs, debug level)")
	flag.Parse()

	logger := logging.NewDefault()
	if *dev {
		logger = logging.NewDevelopment()
	}
	defer logger.Sync()

	if *wasmPath == "" {
		return fmt.Errorf("--wasm is required")
	}

	protocol, err := transport.ParseProtocol(*protocolName)
	if err != nil {
		return err
	}
	c, err := codec.ParseCodec(*codecName)
	if err != nil {
		return err
	}
	binary, err := os.ReadFile(*wasmPath)
	if err != nil {
		return err
	}
	payload, err := codec.Encode(binary, c)
	if err != nil {
		return fmt.Errorf("failed to compress guest: %w", err)
	}

	cert, err := certificate(*certFile, *keyFile)
	if err != nil {
		return err
	}
	if *certFile == "" {
		logger.Warn("Using a self-signed certificate; clients need --insecure")
	}

	srv := transport.NewServer(*addr, cert.ServerConfig(*alpn), payload, logger.Component("serve"))
	srv.Protocol = protocol
	if err := srv.Listen(); err != nil {
		return err
	}
	defer srv.Close()

	logger.Info("Serving guest",
		zap.String("addr", srv.Addr().String()),
		zap.String("wasm", *wasmPath),
		zap.String("protocol", string(protocol)),
		zap.Stringer("codec", c),
		zap.Int("raw_bytes", len(binary)),
		zap.Int("payload_bytes", len(payload)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}

func certificate(certFile, keyFile string) (*transport.Certificate, error) {
	if certFile != "" {
		return transport.LoadCertificate(certFile, keyFile)
	}
	return transport.SelfSignedTLS()
}
