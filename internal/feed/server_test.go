package feed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/portal/internal/command"
	"github.com/GriffinCanCode/portal/internal/monitoring"
	"github.com/GriffinCanCode/portal/internal/scene"
	"github.com/GriffinCanCode/portal/internal/tracing"
)

type recordingSubmitter struct {
	mu     sync.Mutex
	hosts  []string
	traces []tracing.TraceID
	closed bool
}

func (r *recordingSubmitter) SubmitContext(ctx context.Context, host string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	r.hosts = append(r.hosts, host)
	r.traces = append(r.traces, tracing.GetTraceID(ctx))
	return uint64(len(r.hosts))
}

func testScene() scene.Scene {
	s, _ := scene.Build([]command.Event{
		command.FillStyle{Color: "blue"},
		command.FillRect{X: 0, Y: 0, Width: 10, Height: 10},
		command.BeginPath{},
		command.MoveTo{X: 1, Y: 1},
		command.Fill{},
		command.Label{Text: "hi", X: 0, Y: 0, Size: 12, Color: "white"},
	})
	return s
}

func newTestServer(t *testing.T, cfg Config) (*Server, *recordingSubmitter, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg.Development = true
	reg := prometheus.NewRegistry()
	sub := &recordingSubmitter{}
	return NewServer(cfg, sub, monitoring.NewMetrics(reg), reg, nil), sub, reg
}

func do(s *Server, method, path string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())
	require.NoError(t, s.Render(testScene()))

	w := do(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["frames"])
	assert.Equal(t, float64(3), body["primitives"])
}

func TestSceneEncodings(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())
	want := testScene()
	require.NoError(t, s.Render(scene.Scene{}))
	require.NoError(t, s.Render(want))

	tests := []struct {
		name        string
		path        string
		header      []string
		enc         Encoding
		contentType string
	}{
		{name: "default json", path: "/scene", enc: EncodingJSON, contentType: contentTypeJSON},
		{name: "query cbor", path: "/scene?format=cbor", enc: EncodingCBOR, contentType: contentTypeCBOR},
		{name: "accept cbor", path: "/scene", header: []string{"Accept", contentTypeCBOR}, enc: EncodingCBOR, contentType: contentTypeCBOR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, http.MethodGet, tt.path, nil, tt.header...)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))

			var frame Frame
			require.NoError(t, tt.enc.Unmarshal(w.Body.Bytes(), &frame))
			assert.Equal(t, uint64(2), frame.Seq)
			assert.Equal(t, want, frame.Scene)
		})
	}
}

func TestSceneJSONShape(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())
	require.NoError(t, s.Render(testScene()))

	w := do(s, http.MethodGet, "/scene", nil)
	body := w.Body.String()
	assert.Contains(t, body, `"kind":"rect"`)
	assert.Contains(t, body, `"kind":"path"`)
	assert.Contains(t, body, `"op":"move"`)
	assert.Contains(t, body, `"content":"hi"`)
}

func TestEmptySceneIsAnArray(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())

	w := do(s, http.MethodGet, "/scene", nil)
	assert.Contains(t, w.Body.String(), `"primitives":[]`)

	require.NoError(t, s.Render(scene.Scene{}))
	w = do(s, http.MethodGet, "/scene", nil)
	assert.Contains(t, w.Body.String(), `"seq":1`)
	assert.Contains(t, w.Body.String(), `"primitives":[]`)
}

func TestCBORIsDeterministic(t *testing.T) {
	a, err := EncodingCBOR.Marshal(Frame{Seq: 7, Scene: testScene()})
	require.NoError(t, err)
	b, err := EncodingCBOR.Marshal(Frame{Seq: 7, Scene: testScene()})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSceneSVG(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())
	require.NoError(t, s.Render(testScene()))

	w := do(s, http.MethodGet, "/scene.svg?width=100&height=50", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `viewBox="-50.00 -25.00 100.00 50.00"`)
	assert.Contains(t, w.Body.String(), "<rect")
}

func TestLoad(t *testing.T) {
	s, sub, _ := newTestServer(t, DefaultConfig())

	w := do(s, http.MethodPost, "/load", strings.NewReader(`{"host":" example.com "}`), "Content-Type", "application/json")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"host":"example.com","generation":1}`, w.Body.String())
	assert.Equal(t, []string{"example.com"}, sub.hosts)

	for _, body := range []string{`{}`, `{"host":"   "}`, `not json`} {
		w := do(s, http.MethodPost, "/load", strings.NewReader(body), "Content-Type", "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Len(t, sub.hosts, 1)
}

func TestLoadAfterShutdown(t *testing.T) {
	s, sub, _ := newTestServer(t, DefaultConfig())
	sub.closed = true

	w := do(s, http.MethodPost, "/load", strings.NewReader(`{"host":"h"}`), "Content-Type", "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLoadCarriesTrace(t *testing.T) {
	tracer := tracing.New("test", nil)
	defer tracer.Close()

	cfg := DefaultConfig()
	cfg.Tracer = tracer
	s, sub, _ := newTestServer(t, cfg)

	w := do(s, http.MethodPost, "/load", strings.NewReader(`{"host":"h"}`),
		"Content-Type", "application/json",
		tracing.HeaderTraceID, "trace_upstream")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "trace_upstream", w.Header().Get(tracing.HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(tracing.HeaderSpanID))
	assert.Equal(t, []tracing.TraceID{"trace_upstream"}, sub.traces)
}

func TestLoadIsRateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoadLimit = RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}
	s, _, _ := newTestServer(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := do(s, http.MethodPost, "/load", strings.NewReader(`{"host":"h"}`), "Content-Type", "application/json")
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}, codes)
}

func TestCORSPreflight(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())
	w := do(s, http.MethodOptions, "/scene", nil,
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", "GET")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())
	do(s, http.MethodGet, "/health", nil)

	w := do(s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `portal_feed_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestStreamPushesFrames(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())
	require.NoError(t, s.Render(testScene()))

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// Current frame first.
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	var frame Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, uint64(1), frame.Seq)

	require.NoError(t, s.Render(scene.Scene{}))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, uint64(2), frame.Seq)
	assert.Zero(t, frame.Scene.Len())
}

func TestStreamCBOR(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?format=cbor"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.len() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Render(testScene()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)

	var frame Frame
	require.NoError(t, EncodingCBOR.Unmarshal(data, &frame))
	assert.Equal(t, testScene(), frame.Scene)
}

func TestSubscriberKeepsNewestFrame(t *testing.T) {
	sub := newSubscriber()
	for i := uint64(1); i <= 5; i++ {
		sub.offer(Frame{Seq: i})
	}
	got := <-sub.frames
	assert.Equal(t, uint64(5), got.Seq)
	assert.Empty(t, sub.frames)
}

func TestParseEncoding(t *testing.T) {
	enc, err := ParseEncoding("cbor")
	require.NoError(t, err)
	assert.Equal(t, EncodingCBOR, enc)

	_, err = ParseEncoding("xml")
	assert.Error(t, err)
}
