package scene

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/portal/internal/command"
)

var blue = Color{R: 0, G: 0, B: 1, A: 1}

func TestFillRectUsesConventionAndResetsFill(t *testing.T) {
	s, warnings := Build([]command.Event{
		command.FillStyle{Color: "blue"},
		command.FillRect{X: 10, Y: 10, Width: 20, Height: 20},
		command.FillRect{X: 10, Y: 10, Width: 20, Height: 20},
	})

	require.Empty(t, warnings)
	require.Equal(t, 2, s.Len())

	first := s.Primitives[0]
	assert.Equal(t, KindRect, first.Kind)
	assert.Equal(t, LayerRect, first.Layer)
	assert.Equal(t, blue, first.Color)
	assert.Equal(t, &Rect{Center: Point{}, Width: 30, Height: 30}, first.Rect)

	// No intervening FillStyle: default fill
	assert.Equal(t, DefaultFill, s.Primitives[1].Color)
}

func TestEmptyPathIsValid(t *testing.T) {
	s, warnings := Build([]command.Event{
		command.FillStyle{Color: "#0000ff"},
		command.BeginPath{},
		command.Fill{},
	})

	require.Empty(t, warnings)
	require.Equal(t, 1, s.Len())
	p := s.Primitives[0]
	assert.Equal(t, KindPath, p.Kind)
	assert.Equal(t, blue, p.Color)
	require.NotNil(t, p.Path)
	assert.Empty(t, p.Path.Segments)
}

func TestFillWithoutBeginPathWarns(t *testing.T) {
	tests := []struct {
		name   string
		events []command.Event
	}{
		{
			name:   "bare fill",
			events: []command.Event{command.Fill{}},
		},
		{
			name: "path without begin",
			events: []command.Event{
				command.MoveTo{X: 1, Y: 1},
				command.CubicBezierTo{X1: 1, Y1: 2, X2: 3, Y2: 4, X3: 5, Y3: 6},
				command.Fill{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, warnings := Build(tt.events)

			assert.Zero(t, s.Len())
			require.Len(t, warnings, 1)
			assert.True(t, errors.Is(warnings[0], ErrPathOrdering))
			assert.Equal(t, command.KindFill, warnings[0].Event)
			assert.Equal(t, len(tt.events)-1, warnings[0].Index)
		})
	}
}

func TestMalformedShapeDoesNotAffectLaterEvents(t *testing.T) {
	s, warnings := Build([]command.Event{
		command.FillStyle{Color: "blue"},
		command.MoveTo{X: 1, Y: 1},
		command.Fill{},
		command.BeginPath{},
		command.MoveTo{X: 0, Y: 0},
		command.ClosePath{},
		command.Fill{},
		command.Label{Text: "ok", X: 1, Y: 2, Size: 10, Color: "white"},
	})

	require.Len(t, warnings, 1)
	require.Equal(t, 2, s.Len())

	// The dropped shape did not consume the fill style
	assert.Equal(t, KindPath, s.Primitives[0].Kind)
	assert.Equal(t, blue, s.Primitives[0].Color)
	assert.Equal(t, []Segment{
		{Op: OpMoveTo, To: Point{}},
		{Op: OpClose},
	}, s.Primitives[0].Path.Segments)

	assert.Equal(t, KindText, s.Primitives[1].Kind)
}

func TestPathSegmentsKeepOrder(t *testing.T) {
	s, warnings := Build([]command.Event{
		command.BeginPath{},
		command.MoveTo{X: 1, Y: 2},
		command.CubicBezierTo{X1: 3, Y1: 4, X2: 5, Y2: 6, X3: 7, Y3: 8},
		command.BeginPath{},
		command.ClosePath{},
		command.Fill{},
	})

	require.Empty(t, warnings)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, LayerPath, s.Primitives[0].Layer)
	assert.Equal(t, DefaultFill, s.Primitives[0].Color)
	assert.Equal(t, []Segment{
		{Op: OpMoveTo, To: Point{X: 1, Y: 2}},
		{Op: OpCubicTo, Ctrl1: Point{X: 3, Y: 4}, Ctrl2: Point{X: 5, Y: 6}, To: Point{X: 7, Y: 8}},
		{Op: OpClose},
	}, s.Primitives[0].Path.Segments)
}

func TestArcIsOffsetByLastRect(t *testing.T) {
	s, _ := Build([]command.Event{
		command.FillRect{X: 0, Y: 0, Width: 100, Height: 50},
		command.BeginPath{},
		command.Arc{X: 10, Y: 20, Radius: 5, SweepAngle: math.Pi, XRotation: 0.5},
		command.Fill{},
	})

	require.Equal(t, 2, s.Len())
	assert.Equal(t, []Segment{
		{Op: OpMoveTo, To: Point{X: 10 - 50, Y: 20 + 25}},
		{
			Op:        OpArcTo,
			Center:    Point{X: 10 + 5 - 50, Y: 20 + 5 + 25},
			Radii:     Point{X: 5, Y: 5},
			Sweep:     math.Pi,
			XRotation: 0.5,
		},
	}, s.Primitives[1].Path.Segments)
}

func TestArcWithoutRectUsesSentinel(t *testing.T) {
	s, warnings := Build([]command.Event{
		command.BeginPath{},
		command.Arc{X: 10, Y: 20, Radius: 5, SweepAngle: 1},
		command.Fill{},
	})

	require.Empty(t, warnings)
	segments := s.Primitives[0].Path.Segments
	require.Len(t, segments, 2)
	assert.Equal(t, Point{X: 10.5, Y: 19.5}, segments[0].To)
	assert.Equal(t, Point{X: 15.5, Y: 24.5}, segments[1].Center)
}

func TestLabelDoesNotTouchFillOrPath(t *testing.T) {
	s, warnings := Build([]command.Event{
		command.FillStyle{Color: "blue"},
		command.BeginPath{},
		command.Label{Text: "hello", X: 3, Y: 4, Size: 16, Color: "#00ff00"},
		command.Fill{},
	})

	require.Empty(t, warnings)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, Primitive{
		Kind:  KindText,
		Layer: LayerText,
		Color: Color{R: 0, G: 1, B: 0, A: 1},
		Text:  &Text{Content: "hello", Position: Point{X: 3, Y: 4}, Size: 16},
	}, s.Primitives[0])
	assert.Equal(t, blue, s.Primitives[1].Color)
}

func TestInvalidColorsFallBack(t *testing.T) {
	s, warnings := Build([]command.Event{
		command.FillStyle{Color: "not-a-color"},
		command.FillRect{Width: 1, Height: 1},
		command.Label{Text: "x", Color: "also bad"},
	})

	require.Len(t, warnings, 2)
	for _, w := range warnings {
		assert.ErrorIs(t, w, ErrInvalidColor)
	}
	assert.Equal(t, DefaultFill, s.Primitives[0].Color)
	assert.Equal(t, DefaultTextColor, s.Primitives[1].Color)
}

func TestBuildEmptyQueue(t *testing.T) {
	s, warnings := Build(nil)
	assert.Zero(t, s.Len())
	assert.Empty(t, warnings)

	// Renderers always get an array, never null.
	assert.NotNil(t, s.Primitives)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"primitives":[]}`, string(data))
}

func TestSceneCount(t *testing.T) {
	s, _ := Build([]command.Event{
		command.FillRect{Width: 1, Height: 1},
		command.FillRect{Width: 1, Height: 1},
		command.Label{Text: "a", Color: "red"},
	})
	assert.Equal(t, 2, s.Count(KindRect))
	assert.Equal(t, 1, s.Count(KindText))
	assert.Zero(t, s.Count(KindPath))
}
