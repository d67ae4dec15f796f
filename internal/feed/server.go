package feed

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/portal/internal/monitoring"
	"github.com/GriffinCanCode/portal/internal/scene"
	"github.com/GriffinCanCode/portal/internal/tracing"
)

// Submitter starts a background load and returns its generation. The load
// joins the trace carried by ctx.
type Submitter interface {
	SubmitContext(ctx context.Context, host string) uint64
}

// Config configures the feed server.
type Config struct {
	Addr     string
	Encoding Encoding
	// Default SVG viewport for /scene.svg.
	Width, Height float64
	CORS          CORSConfig
	LoadLimit     RateLimitConfig
	Development   bool
	// Tracer, when set, records a span per request.
	Tracer *tracing.Tracer
}

// DefaultConfig returns the feed defaults.
func DefaultConfig() Config {
	return Config{
		Addr:      "127.0.0.1:8080",
		Encoding:  EncodingJSON,
		Width:     800,
		Height:    600,
		CORS:      DefaultCORSConfig(),
		LoadLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 5},
	}
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	// The feed only serves the local machine by default and carries no
	// credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LoadRequest is the body of POST /load.
type LoadRequest struct {
	Host string `json:"host" binding:"required"`
}

// Server publishes scenes to external renderers over HTTP and WebSocket and
// accepts load requests. It implements lifecycle.Renderer.
type Server struct {
	config  Config
	router  *gin.Engine
	hub     *hub
	submit  Submitter
	metrics *monitoring.Metrics
	log     *zap.Logger

	mu     sync.RWMutex
	latest Frame
}

// NewServer builds the router. submit may be nil, in which case /load is
// not registered. gatherer may be nil, in which case /metrics is not
// registered.
func NewServer(cfg Config, submit Submitter, metrics *monitoring.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 800, 600
	}
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingJSON
	}

	s := &Server{
		config:  cfg,
		hub:     newHub(),
		latest:  Frame{Scene: scene.Empty()},
		submit:  submit,
		metrics: metrics,
		log:     logger,
	}

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Tracer != nil {
		router.Use(tracing.HTTPMiddleware(cfg.Tracer))
	}
	router.Use(monitoring.Middleware(metrics))
	router.Use(CORS(cfg.CORS))

	router.GET("/health", s.health)
	router.GET("/scene", s.scene)
	router.GET("/scene.svg", s.svg)
	router.GET("/stream", s.stream)
	if submit != nil {
		router.POST("/load", RateLimit(cfg.LoadLimit), s.load)
	}
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Render stores the scene as the latest frame and pushes it to every stream
// subscriber.
func (s *Server) Render(sc scene.Scene) error {
	if sc.Primitives == nil {
		sc = scene.Empty()
	}
	s.mu.Lock()
	s.latest = Frame{Seq: s.latest.Seq + 1, Scene: sc}
	frame := s.latest
	s.mu.Unlock()

	s.hub.broadcast(frame)
	return nil
}

// Latest returns the most recent frame.
func (s *Server) Latest() Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Scene feed listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) health(c *gin.Context) {
	frame := s.Latest()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"frames":      frame.Seq,
		"primitives":  frame.Scene.Len(),
		"subscribers": s.hub.len(),
	})
}

// encoding picks the frame format: ?format= wins, then Accept, then the
// configured default.
func (s *Server) encoding(c *gin.Context) Encoding {
	if format := c.Query("format"); format != "" {
		if enc, err := ParseEncoding(format); err == nil {
			return enc
		}
	}
	accept := c.GetHeader("Accept")
	switch {
	case strings.Contains(accept, contentTypeCBOR):
		return EncodingCBOR
	case strings.Contains(accept, contentTypeJSON):
		return EncodingJSON
	}
	return s.config.Encoding
}

func (s *Server) scene(c *gin.Context) {
	enc := s.encoding(c)
	data, err := enc.Marshal(s.Latest())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, enc.ContentType(), data)
}

func (s *Server) svg(c *gin.Context) {
	width := queryFloat(c, "width", s.config.Width)
	height := queryFloat(c, "height", s.config.Height)

	c.Header("Content-Type", "image/svg+xml")
	c.Status(http.StatusOK)
	if err := scene.WriteSVG(c.Writer, s.Latest().Scene, width, height); err != nil {
		s.log.Warn("SVG write failed", zap.Error(err))
	}
}

func (s *Server) load(c *gin.Context) {
	var req LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	host := strings.TrimSpace(req.Host)
	if host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "host is required"})
		return
	}

	gen := s.submit.SubmitContext(c.Request.Context(), host)
	if gen == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "loader is shut down"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"host":       host,
		"generation": gen,
	})
}

func (s *Server) stream(c *gin.Context) {
	enc := s.encoding(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)
	s.metrics.IncFeedClients()
	defer s.metrics.DecFeedClients()

	// Send the current frame right away so a new renderer has something to
	// draw before the next tick.
	if latest := s.Latest(); latest.Seq > 0 {
		sub.offer(latest)
	}

	// The reader only watches for close and pongs.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	messageType := websocket.TextMessage
	if enc == EncodingCBOR {
		messageType = websocket.BinaryMessage
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case frame := <-sub.frames:
			data, err := enc.Marshal(frame)
			if err != nil {
				s.log.Warn("Frame encode failed", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(messageType, data); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func queryFloat(c *gin.Context, key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(c.Query(key), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
