package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	*Server
	cert *Certificate
	port int
}

func startServer(t *testing.T, payload []byte) *testServer {
	t.Helper()
	return startProtocolServer(t, payload, ProtocolQUIC)
}

func startProtocolServer(t *testing.T, payload []byte, protocol Protocol) *testServer {
	t.Helper()

	cert, err := SelfSignedTLS()
	require.NoError(t, err)

	srv := NewServer("127.0.0.1:0", cert.ServerConfig(DefaultALPN), payload, zap.NewNop())
	srv.Protocol = protocol
	srv.LingerTimeout = time.Second
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = srv.Close()
		<-done
	})

	return &testServer{
		Server: srv,
		cert:   cert,
		port:   srv.Addr().(*net.UDPAddr).Port,
	}
}

func testConfig(port int) Config {
	cfg := DefaultConfig()
	cfg.Port = port
	cfg.DialTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second
	return cfg
}

func newTestFetcher(t *testing.T, srv *testServer, cfg Config) *Fetcher {
	t.Helper()
	f, err := NewFetcher(cfg, srv.cert.Pool(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFetchRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("guest-bytes-"), 50_000)
	srv := startServer(t, payload)
	f := newTestFetcher(t, srv, testConfig(srv.port))

	for _, host := range []string{"127.0.0.1", "https://127.0.0.1/"} {
		t.Run(host, func(t *testing.T) {
			data, err := f.Fetch(context.Background(), host)
			require.NoError(t, err)
			assert.Equal(t, payload, data)
		})
	}
}

func TestFetchEmptyPayload(t *testing.T) {
	srv := startServer(t, nil)
	f := newTestFetcher(t, srv, testConfig(srv.port))

	data, err := f.Fetch(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFetchServesUpdatedPayload(t *testing.T) {
	srv := startServer(t, []byte("one"))
	f := newTestFetcher(t, srv, testConfig(srv.port))

	data, err := f.Fetch(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	srv.SetPayload([]byte("two"))
	data, err = f.Fetch(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestFetchRejectsOversizedArtifact(t *testing.T) {
	srv := startServer(t, make([]byte, 4096))
	cfg := testConfig(srv.port)
	cfg.MaxBytes = 1024
	f := newTestFetcher(t, srv, cfg)

	_, err := f.Fetch(context.Background(), "127.0.0.1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ErrTooLarge)

	var fetchErr *Error
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, OpRead, fetchErr.Op)
}

func TestFetchUntrustedCertificateFails(t *testing.T) {
	srv := startServer(t, []byte("x"))

	other, err := SelfSignedTLS()
	require.NoError(t, err)
	f, err := NewFetcher(testConfig(srv.port), other.Pool(), zap.NewNop())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "127.0.0.1")
	require.Error(t, err)
	var fetchErr *Error
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, OpDial, fetchErr.Op)
}

func TestFetchInsecureSkipsVerification(t *testing.T) {
	srv := startServer(t, []byte("x"))

	cfg := testConfig(srv.port)
	cfg.Trust = TrustInsecure
	f, err := NewFetcher(cfg, nil, zap.NewNop())
	require.NoError(t, err)

	data, err := f.Fetch(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestFetchUnreachableHost(t *testing.T) {
	// Bind and release a UDP port so nothing answers on it.
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	port := pc.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, pc.Close())

	cfg := testConfig(port)
	cfg.DialTimeout = 200 * time.Millisecond
	cfg.Trust = TrustInsecure
	f, err := NewFetcher(cfg, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "127.0.0.1")
	require.Error(t, err)
	var fetchErr *Error
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, OpDial, fetchErr.Op)
}

func TestFetchEmptyHost(t *testing.T) {
	f, err := NewFetcher(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ErrEmptyHost)
}

func TestServerRejectsWrongHandshake(t *testing.T) {
	srv := startServer(t, []byte("secret"))

	tlsConf := &tls.Config{
		RootCAs:    srv.cert.Pool(),
		NextProtos: []string{DefaultALPN},
		MinVersion: tls.VersionTLS13,
	}
	conn, err := quic.DialAddr(context.Background(), srv.Addr().String(), tlsConf, nil)
	require.NoError(t, err)
	defer conn.CloseWithError(0, "")

	stream, err := conn.OpenStreamSync(context.Background())
	require.NoError(t, err)
	_, err = stream.Write([]byte("HTTP"))
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	require.NoError(t, stream.SetReadDeadline(time.Now().Add(2*time.Second)))
	data, err := io.ReadAll(stream)
	require.Error(t, err)
	assert.NotContains(t, string(data), "secret")

	// Depending on which frame arrives first the client sees the stream
	// reset or the connection close; both carry the handshake code.
	var streamErr *quic.StreamError
	var appErr *quic.ApplicationError
	switch {
	case errors.As(err, &streamErr):
		assert.Equal(t, streamBadHandshake, streamErr.ErrorCode)
	case errors.As(err, &appErr):
		assert.Equal(t, codeBadHandshake, appErr.ErrorCode)
	default:
		t.Fatalf("unexpected error %v", err)
	}
}

func TestWebTransportFetchRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("guest-bytes-"), 50_000)
	srv := startProtocolServer(t, payload, ProtocolWebTransport)

	cfg := testConfig(srv.port)
	cfg.Protocol = ProtocolWebTransport
	f := newTestFetcher(t, srv, cfg)

	data, err := f.Fetch(context.Background(), "https://127.0.0.1/")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	srv.SetPayload([]byte("two"))
	data, err = f.Fetch(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestWebTransportRejectsOversizedArtifact(t *testing.T) {
	srv := startProtocolServer(t, make([]byte, 4096), ProtocolWebTransport)
	cfg := testConfig(srv.port)
	cfg.Protocol = ProtocolWebTransport
	cfg.MaxBytes = 1024
	f := newTestFetcher(t, srv, cfg)

	_, err := f.Fetch(context.Background(), "127.0.0.1")
	assert.ErrorIs(t, err, ErrTooLarge)
	var fetchErr *Error
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, OpRead, fetchErr.Op)
}

func TestProtocolMismatchFailsDial(t *testing.T) {
	srv := startServer(t, []byte("x"))
	cfg := testConfig(srv.port)
	cfg.Protocol = ProtocolWebTransport
	f := newTestFetcher(t, srv, cfg)

	_, err := f.Fetch(context.Background(), "127.0.0.1")
	require.Error(t, err)
	var fetchErr *Error
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, OpDial, fetchErr.Op)
}

func TestBreakerShortCircuitsFailingHost(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	port := pc.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, pc.Close())

	cfg := testConfig(port)
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.Trust = TrustInsecure
	f, err := NewFetcher(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	f.WithBreaker(NewBreaker(BreakerSettings{Threshold: 2, Cooldown: time.Minute}))

	for i := 0; i < 2; i++ {
		_, err = f.Fetch(context.Background(), "127.0.0.1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	start := time.Now()
	_, err = f.Fetch(context.Background(), "127.0.0.1")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAddress(t *testing.T) {
	tests := []struct {
		host    string
		want    string
		wantErr bool
	}{
		{host: "example.com", want: "example.com:4433"},
		{host: "example.com:9000", want: "example.com:9000"},
		{host: "https://example.com/", want: "example.com:4433"},
		{host: "  example.com  ", want: "example.com:4433"},
		{host: "::1", want: "[::1]:4433"},
		{host: "[::1]:5000", want: "[::1]:5000"},
		{host: "example.com:http", wantErr: true},
		{host: "", wantErr: true},
		{host: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got, err := Address(tt.host, 4433)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseProtocol(t *testing.T) {
	p, err := ParseProtocol("webtransport")
	require.NoError(t, err)
	assert.Equal(t, ProtocolWebTransport, p)

	p, err = ParseProtocol("")
	require.NoError(t, err)
	assert.Equal(t, ProtocolQUIC, p)

	_, err = ParseProtocol("http")
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Protocol = "http"
	_, err = NewFetcher(cfg, nil, nil)
	assert.Error(t, err)
}

func TestParseTrustPolicy(t *testing.T) {
	p, err := ParseTrustPolicy("insecure")
	require.NoError(t, err)
	assert.Equal(t, TrustInsecure, p)

	p, err = ParseTrustPolicy("")
	require.NoError(t, err)
	assert.Equal(t, TrustVerify, p)

	_, err = ParseTrustPolicy("yolo")
	assert.Error(t, err)
}
