package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/portal/internal/monitoring"
	"github.com/GriffinCanCode/portal/internal/sandbox"
	"github.com/GriffinCanCode/portal/internal/scene"
)

// State is the manager's lifecycle state.
type State int

const (
	// Uninitialized means no load has succeeded yet.
	Uninitialized State = iota
	// Running means a guest is active. Once running, the manager never
	// returns to Uninitialized.
	Running
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// TickReport summarizes one tick.
type TickReport struct {
	Applied   int
	Dropped   int
	Failed    int
	SetupRan  bool
	UpdateRan bool
	// Trap is the last guest failure of this tick, if any.
	Trap       error
	Events     int
	Primitives int
	Warnings   []scene.Warning
	Duration   time.Duration
}

// Manager owns the active guest. All methods must be called from the tick
// loop goroutine; load workers reach it only through the Inbox.
type Manager struct {
	inbox   *Inbox
	log     *zap.Logger
	metrics *monitoring.Metrics

	active   Guest
	host     string
	firstRun bool
	applied  uint64

	// failing suppresses repeated trap logs until the guest succeeds again.
	failing bool
}

// NewManager creates a manager in the Uninitialized state.
func NewManager(inbox *Inbox, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		inbox: inbox,
		log:   logger,
	}
}

// WithMetrics records swaps, traps and tick statistics.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// State returns Running once any load has been applied.
func (m *Manager) State() State {
	if m.active == nil {
		return Uninitialized
	}
	return Running
}

// FirstRun reports whether setup is still pending for the active guest.
func (m *Manager) FirstRun() bool {
	return m.firstRun
}

// Active returns the running guest, or nil.
func (m *Manager) Active() Guest {
	return m.active
}

// Host returns the host the active guest was loaded from.
func (m *Manager) Host() string {
	return m.host
}

// Generation returns the generation of the active guest.
func (m *Manager) Generation() uint64 {
	return m.applied
}

// Apply installs a load result. Failed loads are logged and change nothing.
// A result older than the active guest is closed and dropped, so the most
// recently requested load wins regardless of completion order. It reports
// whether the result became active.
func (m *Manager) Apply(ctx context.Context, r Result) bool {
	log := m.log.With(zap.String("host", r.Host), zap.Uint64("generation", r.Generation))

	if r.Err != nil {
		log.Warn("Load failed", zap.Error(r.Err))
		return false
	}
	if r.Guest == nil {
		log.Warn("Load produced no guest")
		return false
	}

	if m.active != nil && r.Generation <= m.applied {
		log.Info("Dropping stale load", zap.Uint64("active_generation", m.applied))
		if err := r.Guest.Close(ctx); err != nil {
			log.Warn("Closing stale guest failed", zap.Error(err))
		}
		m.metrics.RecordDropped()
		return false
	}

	previous := m.active
	m.active = r.Guest
	m.host = r.Host
	m.applied = r.Generation
	m.firstRun = true
	m.failing = false
	m.metrics.RecordApplied()

	log.Info("Guest activated", zap.String("instance", r.Guest.ID()))

	if previous != nil {
		if err := previous.Close(ctx); err != nil {
			log.Warn("Closing replaced guest failed", zap.String("instance", previous.ID()), zap.Error(err))
		}
	}
	return true
}

// Tick applies pending load results, drives the active guest once and
// rebuilds the scene from the commands it recorded. With no guest the scene
// is empty.
func (m *Manager) Tick(ctx context.Context) (scene.Scene, TickReport) {
	start := time.Now()
	var report TickReport

	for _, r := range m.inbox.Take() {
		applied := m.Apply(ctx, r)
		switch {
		case r.Err != nil || r.Guest == nil:
			report.Failed++
		case applied:
			report.Applied++
		default:
			report.Dropped++
		}
	}

	if m.active == nil {
		report.Duration = time.Since(start)
		return scene.Empty(), report
	}

	if m.firstRun {
		m.firstRun = false
		report.SetupRan = true
		if err := m.active.Setup(ctx); err != nil {
			report.Trap = err
			m.trap(sandbox.EntrySetup, err)
		}
	}

	report.UpdateRan = true
	if err := m.active.Update(ctx); err != nil {
		report.Trap = err
		m.trap(sandbox.EntryUpdate, err)
	} else if report.Trap == nil {
		m.failing = false
	}

	events := m.active.Drain()
	s, warnings := scene.Build(events)
	for _, w := range warnings {
		m.log.Warn("Scene warning",
			zap.String("instance", m.active.ID()),
			zap.Int("index", w.Index),
			zap.Stringer("event", w.Event),
			zap.Error(w.Err))
	}

	report.Events = len(events)
	report.Primitives = s.Len()
	report.Warnings = warnings
	report.Duration = time.Since(start)
	m.metrics.RecordTick(report.Events, report.Primitives, countPathWarnings(warnings), report.Duration)
	return s, report
}

func (m *Manager) trap(entry sandbox.Entry, err error) {
	m.metrics.RecordTrap(string(entry))

	fields := []zap.Field{
		zap.String("instance", m.active.ID()),
		zap.String("entry", string(entry)),
		zap.Error(err),
	}
	if m.failing {
		m.log.Debug("Guest trapped again", fields...)
		return
	}
	m.failing = true

	var trap *sandbox.TrapError
	if errors.As(err, &trap) && trap.Timeout() {
		m.log.Warn("Guest exceeded call timeout; instance stays active until replaced", fields...)
		return
	}
	m.log.Warn("Guest trapped", fields...)
}

// Close destroys the active guest. The manager keeps its state so a late
// Tick is harmless, but the guest fails every call.
func (m *Manager) Close(ctx context.Context) error {
	if m.active == nil {
		return nil
	}
	m.metrics.SetInstanceActive(false)
	return m.active.Close(ctx)
}

func countPathWarnings(warnings []scene.Warning) int {
	n := 0
	for _, w := range warnings {
		if errors.Is(w, scene.ErrPathOrdering) {
			n++
		}
	}
	return n
}
