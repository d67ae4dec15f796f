package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the client. Every method is safe to
// call on a nil *Metrics, so components can run without instrumentation.
type Metrics struct {
	// Load pipeline metrics
	FetchesTotal  *prometheus.CounterVec
	FetchBytes    prometheus.Histogram
	LoadDuration  *prometheus.HistogramVec
	LoadsApplied  prometheus.Counter
	LoadsDropped  prometheus.Counter
	LoadsInFlight prometheus.Gauge

	// Guest metrics
	GuestTraps     *prometheus.CounterVec
	PathWarnings   prometheus.Counter
	InstanceActive prometheus.Gauge

	// Tick metrics
	QueueEvents     prometheus.Histogram
	ScenePrimitives prometheus.Gauge
	TickDuration    prometheus.Histogram

	// Feed metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	FeedClients     prometheus.Gauge
}

// NewMetrics creates the metric set and registers it on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_fetches_total",
				Help: "Artifact loads by outcome (ok, transport, decode, load)",
			},
			[]string{"result"},
		),
		FetchBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portal_fetch_bytes",
				Help:    "Size of fetched (compressed) artifacts in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),
		LoadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_load_duration_seconds",
				Help:    "Duration of each load pipeline stage",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		LoadsApplied: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_loads_applied_total",
				Help: "Loaded instances that became the active instance",
			},
		),
		LoadsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_loads_dropped_total",
				Help: "Loaded instances discarded because a newer load was already applied",
			},
		),
		LoadsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "portal_loads_in_flight",
				Help: "Loads currently fetching, decoding or instantiating",
			},
		),
		GuestTraps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_guest_traps_total",
				Help: "Guest faults by entry point",
			},
			[]string{"entry"},
		),
		PathWarnings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_path_warnings_total",
				Help: "Fill commands dropped because no path was begun",
			},
		),
		InstanceActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "portal_instance_active",
				Help: "1 when a guest instance is running",
			},
		),
		QueueEvents: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portal_queue_events",
				Help:    "Command events drained per tick",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		ScenePrimitives: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "portal_scene_primitives",
				Help: "Primitives in the most recent scene",
			},
		),
		TickDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portal_tick_duration_seconds",
				Help:    "Duration of one tick (guest calls plus scene rebuild)",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_feed_requests_total",
				Help: "Scene feed HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_feed_request_duration_seconds",
				Help:    "Scene feed HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		FeedClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "portal_feed_clients",
				Help: "Connected scene stream clients",
			},
		),
	}
}

// RecordFetch records the outcome of one load attempt.
func (m *Metrics) RecordFetch(result string, size int) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(result).Inc()
	if size > 0 {
		m.FetchBytes.Observe(float64(size))
	}
}

// RecordStage records the duration of one load pipeline stage.
func (m *Metrics) RecordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.LoadDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// LoadStarted marks a load as in flight.
func (m *Metrics) LoadStarted() {
	if m == nil {
		return
	}
	m.LoadsInFlight.Inc()
}

// LoadFinished marks a load as no longer in flight.
func (m *Metrics) LoadFinished() {
	if m == nil {
		return
	}
	m.LoadsInFlight.Dec()
}

// RecordApplied counts an instance swap.
func (m *Metrics) RecordApplied() {
	if m == nil {
		return
	}
	m.LoadsApplied.Inc()
	m.InstanceActive.Set(1)
}

// RecordDropped counts a stale instance that was discarded.
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.LoadsDropped.Inc()
}

// SetInstanceActive reports whether an instance is running.
func (m *Metrics) SetInstanceActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.InstanceActive.Set(1)
		return
	}
	m.InstanceActive.Set(0)
}

// RecordTrap counts a guest fault in setup or update.
func (m *Metrics) RecordTrap(entry string) {
	if m == nil {
		return
	}
	m.GuestTraps.WithLabelValues(entry).Inc()
}

// RecordTick records one drained queue and the scene it produced.
func (m *Metrics) RecordTick(events, primitives, warnings int, d time.Duration) {
	if m == nil {
		return
	}
	m.QueueEvents.Observe(float64(events))
	m.ScenePrimitives.Set(float64(primitives))
	m.PathWarnings.Add(float64(warnings))
	m.TickDuration.Observe(d.Seconds())
}

// RecordHTTPRequest records one feed request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncFeedClients records a new stream subscriber.
func (m *Metrics) IncFeedClients() {
	if m == nil {
		return
	}
	m.FeedClients.Inc()
}

// DecFeedClients records a stream subscriber leaving.
func (m *Metrics) DecFeedClients() {
	if m == nil {
		return
	}
	m.FeedClients.Dec()
}
