package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/portal/internal/scene"
)

func TestNewLoopRejectsBadRate(t *testing.T) {
	m, _, _ := newTestManager()
	_, err := NewLoop(m, 0, nil)
	assert.Error(t, err)
}

func TestStepRendersEveryScene(t *testing.T) {
	m, inbox, _ := newTestManager()
	inbox.Post(Result{Generation: 1, Host: "a", Guest: rectGuest("a")})

	var rendered []scene.Scene
	var reports []TickReport
	loop, err := NewLoop(m, 60, nil,
		RendererFunc(func(s scene.Scene) error {
			rendered = append(rendered, s)
			return nil
		}),
		RendererFunc(func(scene.Scene) error { return errors.New("display gone") }),
	)
	require.NoError(t, err)
	loop.OnTick = func(r TickReport) { reports = append(reports, r) }

	loop.Step(context.Background())
	loop.Step(context.Background())

	require.Len(t, rendered, 2)
	assert.Equal(t, 1, rendered[1].Len())
	require.Len(t, reports, 2)
	assert.True(t, reports[0].SetupRan)
	assert.False(t, reports[1].SetupRan)
}

func TestRunStopsOnCancel(t *testing.T) {
	m, _, _ := newTestManager()
	var ticks atomic.Int32
	loop, err := NewLoop(m, 200, nil, RendererFunc(func(scene.Scene) error {
		ticks.Add(1)
		return nil
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}
