package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
	"go.uber.org/zap"
)

// Handshake is the literal request a client writes on the artifact stream.
const Handshake = "WASM"

// DefaultALPN is the application protocol both ends negotiate.
const DefaultALPN = "portal-wasm"

// Application error codes used when closing connections.
const (
	codeOK           quic.ApplicationErrorCode = 0
	codeCanceled     quic.ApplicationErrorCode = 1
	codeBadHandshake quic.ApplicationErrorCode = 2
)

// Stream error codes used when resetting a single stream.
const (
	streamCanceled     quic.StreamErrorCode = 1
	streamBadHandshake quic.StreamErrorCode = 2
)

// Protocol selects how the artifact stream is carried.
type Protocol string

const (
	// ProtocolQUIC opens a stream on a raw QUIC connection negotiated with
	// the configured ALPN.
	ProtocolQUIC Protocol = "quic"

	// ProtocolWebTransport opens a stream inside a WebTransport session
	// established over HTTP/3 at https://host:port/.
	ProtocolWebTransport Protocol = "webtransport"
)

// ParseProtocol parses "quic" or "webtransport".
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case ProtocolQUIC, "":
		return ProtocolQUIC, nil
	case ProtocolWebTransport:
		return ProtocolWebTransport, nil
	default:
		return "", fmt.Errorf("unknown protocol %q", s)
	}
}

// artifactStream is the part of a bidirectional stream the exchange needs.
// Both quic and webtransport streams satisfy it.
type artifactStream interface {
	io.ReadWriteCloser
	SetReadDeadline(time.Time) error
}

// Config configures a Fetcher.
type Config struct {
	Protocol    Protocol
	Port        int
	Trust       TrustPolicy
	CAFile      string
	ALPN        string
	DialTimeout time.Duration // 0 disables
	ReadTimeout time.Duration // 0 disables
	MaxBytes    int64         // 0 disables
	KeyLogFile  string
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		Protocol:    ProtocolQUIC,
		Port:        4433,
		Trust:       TrustVerify,
		ALPN:        DefaultALPN,
		DialTimeout: 10 * time.Second,
		ReadTimeout: 30 * time.Second,
		MaxBytes:    64 << 20,
	}
}

// Fetcher retrieves compressed guest artifacts over QUIC. A Fetcher is safe
// for concurrent use; every Fetch opens and closes its own connection.
type Fetcher struct {
	config  Config
	tls     *tls.Config
	quic    *quic.Config
	keyLog  io.Closer
	breaker *Breaker
	log     *zap.Logger
}

// NewFetcher builds a fetcher. roots, when non-nil, replaces the system and
// CA-file roots under TrustVerify.
func NewFetcher(cfg Config, roots *x509.CertPool, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ALPN == "" {
		cfg.ALPN = DefaultALPN
	}
	if _, err := ParseProtocol(string(cfg.Protocol)); err != nil {
		return nil, err
	}
	if cfg.Protocol == "" {
		cfg.Protocol = ProtocolQUIC
	}

	tlsConf, err := clientTLS(cfg, roots)
	if err != nil {
		return nil, err
	}
	if cfg.Trust == TrustInsecure {
		logger.Warn("Certificate verification disabled", zap.String("trust", string(cfg.Trust)))
	}

	f := &Fetcher{
		config: cfg,
		tls:    tlsConf,
		quic:   &quic.Config{HandshakeIdleTimeout: cfg.DialTimeout},
		log:    logger,
	}

	if cfg.KeyLogFile != "" {
		file, err := os.OpenFile(cfg.KeyLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open key log: %w", err)
		}
		tlsConf.KeyLogWriter = file
		f.keyLog = file
		logger.Warn("Writing TLS session keys", zap.String("file", cfg.KeyLogFile))
	}

	return f, nil
}

// WithBreaker guards every fetch with a per-host circuit.
func (f *Fetcher) WithBreaker(b *Breaker) *Fetcher {
	f.breaker = b
	return f
}

// Close releases the key log file, if any.
func (f *Fetcher) Close() error {
	if f.keyLog != nil {
		return f.keyLog.Close()
	}
	return nil
}

// Address normalizes a user-supplied host to host:port. A scheme prefix and
// trailing slashes are dropped; a host that already names a port keeps it.
func Address(host string, port int) (string, error) {
	h := strings.TrimSpace(host)
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	h = strings.TrimRight(h, "/")
	if h == "" {
		return "", ErrEmptyHost
	}

	if _, p, err := net.SplitHostPort(h); err == nil {
		if _, err := strconv.ParseUint(p, 10, 16); err != nil {
			return "", fmt.Errorf("invalid port in %q", host)
		}
		return h, nil
	}
	return net.JoinHostPort(strings.Trim(h, "[]"), strconv.Itoa(port)), nil
}

// Fetch downloads the artifact served by host. The connection is closed
// before Fetch returns on every path.
func (f *Fetcher) Fetch(ctx context.Context, host string) ([]byte, error) {
	addr, err := Address(host, f.config.Port)
	if err != nil {
		return nil, &Error{Op: OpDial, Host: host, Err: err}
	}

	var data []byte
	fetch := func() error {
		var err error
		data, err = f.fetch(ctx, addr)
		return err
	}

	if f.breaker != nil {
		err = f.breaker.Do(addr, fetch, func(err error) bool {
			return ctx.Err() == nil
		})
		if errors.Is(err, ErrCircuitOpen) {
			return nil, &Error{Op: OpDial, Host: addr, Err: err}
		}
	} else {
		err = fetch()
	}

	if err != nil {
		return nil, err
	}
	f.log.Debug("Artifact fetched", zap.String("host", addr), zap.Int("bytes", len(data)))
	return data, nil
}

func (f *Fetcher) fetch(ctx context.Context, addr string) ([]byte, error) {
	dialCtx := ctx
	if f.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, f.config.DialTimeout)
		defer cancel()
	}
	if f.config.Protocol == ProtocolWebTransport {
		return f.fetchWebTransport(ctx, dialCtx, addr)
	}

	conn, err := quic.DialAddr(dialCtx, addr, f.tls, f.quic)
	if err != nil {
		return nil, &Error{Op: OpDial, Host: addr, Err: err}
	}
	defer conn.CloseWithError(codeOK, "")

	stop := context.AfterFunc(ctx, func() {
		_ = conn.CloseWithError(codeCanceled, "canceled")
	})
	defer stop()

	stream, err := conn.OpenStreamSync(dialCtx)
	if err != nil {
		return nil, &Error{Op: OpOpenStream, Host: addr, Err: err}
	}
	return f.exchange(stream, addr, func() { stream.CancelRead(streamCanceled) })
}

// fetchWebTransport runs the same exchange on a stream of a WebTransport
// session. The session always negotiates h3, whatever ALPN is configured.
func (f *Fetcher) fetchWebTransport(ctx, dialCtx context.Context, addr string) ([]byte, error) {
	tlsConf := f.tls.Clone()
	tlsConf.NextProtos = []string{http3.NextProtoH3}
	quicConf := f.quic.Clone()
	quicConf.EnableDatagrams = true

	// The dialer leaves the QUIC connection open after the session ends.
	var conn *quic.Conn
	dialer := &webtransport.Dialer{
		TLSClientConfig: tlsConf,
		QUICConfig:      quicConf,
		DialAddr: func(ctx context.Context, addr string, tlsConf *tls.Config, conf *quic.Config) (*quic.Conn, error) {
			c, err := quic.DialAddrEarly(ctx, addr, tlsConf, conf)
			conn = c
			return c, err
		},
	}
	defer func() {
		if conn != nil {
			_ = conn.CloseWithError(codeOK, "")
		}
	}()
	defer dialer.Close()

	_, session, err := dialer.Dial(dialCtx, "https://"+addr+"/", nil)
	if err != nil {
		return nil, &Error{Op: OpDial, Host: addr, Err: err}
	}
	defer session.CloseWithError(webtransport.SessionErrorCode(codeOK), "")

	stop := context.AfterFunc(ctx, func() {
		_ = session.CloseWithError(webtransport.SessionErrorCode(codeCanceled), "canceled")
	})
	defer stop()

	stream, err := session.OpenStreamSync(dialCtx)
	if err != nil {
		return nil, &Error{Op: OpOpenStream, Host: addr, Err: err}
	}
	return f.exchange(stream, addr, func() { stream.CancelRead(webtransport.StreamErrorCode(streamCanceled)) })
}

// exchange writes the handshake and reads the artifact to EOF. cancel resets
// the receive side when the artifact overflows the size cap.
func (f *Fetcher) exchange(stream artifactStream, addr string, cancel func()) ([]byte, error) {
	if _, err := stream.Write([]byte(Handshake)); err != nil {
		return nil, &Error{Op: OpHandshake, Host: addr, Err: err}
	}
	// Closing the send side tells the server the request is complete.
	if err := stream.Close(); err != nil {
		return nil, &Error{Op: OpHandshake, Host: addr, Err: err}
	}

	if f.config.ReadTimeout > 0 {
		if err := stream.SetReadDeadline(time.Now().Add(f.config.ReadTimeout)); err != nil {
			return nil, &Error{Op: OpRead, Host: addr, Err: err}
		}
	}

	var r io.Reader = stream
	if f.config.MaxBytes > 0 {
		r = io.LimitReader(stream, f.config.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &Error{Op: OpRead, Host: addr, Err: err}
	}
	if f.config.MaxBytes > 0 && int64(len(data)) > f.config.MaxBytes {
		cancel()
		return nil, &Error{Op: OpRead, Host: addr, Err: fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.config.MaxBytes)}
	}
	return data, nil
}
