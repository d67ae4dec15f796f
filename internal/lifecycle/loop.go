package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/portal/internal/scene"
)

// Renderer consumes the scene produced by each tick.
type Renderer interface {
	Render(s scene.Scene) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(s scene.Scene) error

func (f RendererFunc) Render(s scene.Scene) error { return f(s) }

// Loop drives the manager at a fixed rate and publishes every scene.
type Loop struct {
	manager   *Manager
	interval  time.Duration
	renderers []Renderer
	log       *zap.Logger

	// OnTick, when set, receives each tick's report after rendering.
	OnTick func(TickReport)
}

// NewLoop creates a loop ticking tickRate times per second.
func NewLoop(manager *Manager, tickRate int, logger *zap.Logger, renderers ...Renderer) (*Loop, error) {
	if tickRate <= 0 {
		return nil, fmt.Errorf("tick rate must be positive, got %d", tickRate)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		manager:   manager,
		interval:  time.Second / time.Duration(tickRate),
		renderers: renderers,
		log:       logger,
	}, nil
}

// Run ticks until ctx is done. A slow tick delays the next one; missed ticks
// are not replayed.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.log.Info("Tick loop started", zap.Duration("interval", l.interval))

	for {
		select {
		case <-ctx.Done():
			l.log.Info("Tick loop stopped")
			return nil
		case <-ticker.C:
			l.Step(ctx)
		}
	}
}

// Step runs one tick and renders its scene.
func (l *Loop) Step(ctx context.Context) TickReport {
	s, report := l.manager.Tick(ctx)
	for _, r := range l.renderers {
		if err := r.Render(s); err != nil {
			l.log.Warn("Render failed", zap.Error(err))
		}
	}
	if l.OnTick != nil {
		l.OnTick(report)
	}
	return report
}
