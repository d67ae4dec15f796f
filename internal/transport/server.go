package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
	"go.uber.org/zap"
)

// Server answers artifact requests: for each connection it accepts one
// stream, checks the handshake and writes the current payload.
type Server struct {
	addr    string
	tls     *tls.Config
	payload atomic.Pointer[[]byte]
	log     *zap.Logger

	// Protocol selects raw QUIC (the default) or WebTransport sessions. It
	// must be set before Listen.
	Protocol Protocol
	// HandshakeTimeout bounds how long a client may take to send its request.
	HandshakeTimeout time.Duration
	// LingerTimeout bounds how long the server waits for the client to close
	// the connection after the payload was written.
	LingerTimeout time.Duration

	mu     sync.Mutex
	ln     *quic.Listener
	udp    net.PacketConn
	wt     *webtransport.Server
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server on addr. tlsConf must carry a certificate and
// the ALPN the clients use.
func NewServer(addr string, tlsConf *tls.Config, payload []byte, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:             addr,
		tls:              tlsConf,
		log:              logger,
		Protocol:         ProtocolQUIC,
		HandshakeTimeout: 5 * time.Second,
		LingerTimeout:    10 * time.Second,
	}
	s.SetPayload(payload)
	return s
}

// SetPayload replaces the artifact served to new requests.
func (s *Server) SetPayload(payload []byte) {
	s.payload.Store(&payload)
}

// Listen binds the UDP socket. It is called by Serve when needed; calling it
// first lets the caller learn the bound address.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil || s.udp != nil {
		return nil
	}

	if s.Protocol == ProtocolWebTransport {
		udp, err := net.ListenPacket("udp", s.addr)
		if err != nil {
			return err
		}
		s.udp = udp
		return nil
	}

	ln, err := quic.ListenAddr(s.addr, s.tls, &quic.Config{})
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.ln != nil:
		return s.ln.Addr()
	case s.udp != nil:
		return s.udp.LocalAddr()
	}
	return nil
}

// Serve accepts connections until ctx is done or the server is closed.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	if s.Protocol == ProtocolWebTransport {
		return s.serveWebTransport(ctx)
	}

	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	s.log.Info("Artifact server listening", zap.String("addr", ln.Addr().String()), zap.String("protocol", string(ProtocolQUIC)))

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				s.wg.Wait()
				return nil
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) serveWebTransport(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	udp := s.udp
	var wt *webtransport.Server
	wt = &webtransport.Server{
		H3: http3.Server{
			TLSConfig: s.tls,
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				s.upgrade(ctx, wt, w, r)
			}),
		},
		ReorderingTimeout: s.HandshakeTimeout,
	}
	s.wt = wt
	s.mu.Unlock()

	s.log.Info("Artifact server listening", zap.String("addr", udp.LocalAddr().String()), zap.String("protocol", string(ProtocolWebTransport)))

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	err := wt.Serve(udp)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Close stops accepting and closes the listener.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	ln, wt, udp := s.ln, s.wt, s.udp
	s.mu.Unlock()

	if ln != nil {
		return ln.Close()
	}
	var err error
	if wt != nil {
		err = wt.Close()
	}
	if udp != nil {
		err = errors.Join(err, udp.Close())
	}
	return err
}

func (s *Server) handle(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()
	log := s.log.With(zap.String("remote", remote))

	acceptCtx, cancel := context.WithTimeout(ctx, s.HandshakeTimeout)
	defer cancel()

	stream, err := conn.AcceptStream(acceptCtx)
	if err != nil {
		log.Debug("No request stream", zap.Error(err))
		_ = conn.CloseWithError(codeBadHandshake, "no stream")
		return
	}

	switch s.answer(stream, log, func() { stream.CancelWrite(streamBadHandshake) }) {
	case errBadHandshake:
		_ = conn.CloseWithError(codeBadHandshake, "bad handshake")
		return
	case nil:
	default:
		_ = conn.CloseWithError(codeCanceled, "write failed")
		return
	}

	// The client closes the connection once it has read to EOF. Closing first
	// could discard data still in flight.
	s.linger(ctx, conn.Context())
	_ = conn.CloseWithError(codeOK, "")
}

// upgrade turns an extended CONNECT into a session and serves one stream on
// it. The handler returns once the session is done.
func (s *Server) upgrade(ctx context.Context, wt *webtransport.Server, w http.ResponseWriter, r *http.Request) {
	log := s.log.With(zap.String("remote", r.RemoteAddr))

	session, err := wt.Upgrade(w, r)
	if err != nil {
		log.Warn("Rejected session", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	acceptCtx, cancel := context.WithTimeout(ctx, s.HandshakeTimeout)
	defer cancel()

	stream, err := session.AcceptStream(acceptCtx)
	if err != nil {
		log.Debug("No request stream", zap.Error(err))
		_ = session.CloseWithError(webtransport.SessionErrorCode(codeBadHandshake), "no stream")
		return
	}

	switch s.answer(stream, log, func() { stream.CancelWrite(webtransport.StreamErrorCode(streamBadHandshake)) }) {
	case errBadHandshake:
		_ = session.CloseWithError(webtransport.SessionErrorCode(codeBadHandshake), "bad handshake")
		return
	case nil:
	default:
		_ = session.CloseWithError(webtransport.SessionErrorCode(codeCanceled), "write failed")
		return
	}

	s.linger(ctx, session.Context())
	_ = session.CloseWithError(webtransport.SessionErrorCode(codeOK), "")
}

var errBadHandshake = errors.New("bad handshake")

// answer reads the request from stream and writes the current payload.
// reject resets the send side when the request is not the handshake.
func (s *Server) answer(stream artifactStream, log *zap.Logger, reject func()) error {
	_ = stream.SetReadDeadline(time.Now().Add(s.HandshakeTimeout))
	request, err := io.ReadAll(io.LimitReader(stream, int64(len(Handshake))+1))
	if err != nil || !bytes.Equal(request, []byte(Handshake)) {
		log.Warn("Rejected handshake", zap.ByteString("request", request), zap.Error(err))
		reject()
		return errBadHandshake
	}

	payload := *s.payload.Load()
	if _, err := stream.Write(payload); err != nil {
		log.Warn("Write failed", zap.Error(err))
		return err
	}
	_ = stream.Close()
	log.Debug("Artifact served", zap.Int("bytes", len(payload)))
	return nil
}

func (s *Server) linger(ctx, peer context.Context) {
	timer := time.NewTimer(s.LingerTimeout)
	defer timer.Stop()
	select {
	case <-peer.Done():
	case <-ctx.Done():
	case <-timer.C:
	}
}
