package scene

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/portal/internal/command"
)

var (
	// ErrPathOrdering reports a Fill with no BeginPath opening the current
	// path. The shape is dropped; the rest of the tick is unaffected.
	ErrPathOrdering = errors.New("path should start with begin_path")

	// ErrInvalidColor reports a color string that could not be parsed. The
	// default color is used instead.
	ErrInvalidColor = errors.New("invalid color")
)

// Warning is a non-fatal problem found while replaying one tick's events.
type Warning struct {
	Index int          // position of the offending event in the drained queue
	Event command.Kind // kind of the offending event
	Err   error
}

func (w Warning) Error() string {
	return fmt.Sprintf("event %d (%s): %v", w.Index, w.Event, w.Err)
}

// rectUnset is the remembered rectangle size before any FillRect in a tick.
const rectUnset = -1

// pathCommand is one entry of the accumulated path. begin marks the start
// of a path window.
type pathCommand struct {
	begin bool
	event command.Event
}

// Builder replays one tick's command events into a Scene. A Builder is used
// for exactly one tick.
type Builder struct {
	currentFill *Color
	currentPath []pathCommand

	// Size of the most recent FillRect. Arc coordinates are offset by half of
	// it; see arcSegments.
	lastRectWidth  float32
	lastRectHeight float32

	primitives []Primitive
	warnings   []Warning
	index      int
}

// NewBuilder returns a builder with no fill, no path and no remembered
// rectangle.
func NewBuilder() *Builder {
	return &Builder{
		lastRectWidth:  rectUnset,
		lastRectHeight: rectUnset,
	}
}

// Build replays events in order and returns the resulting scene together
// with any warnings.
func Build(events []command.Event) (Scene, []Warning) {
	b := NewBuilder()
	for _, e := range events {
		b.Apply(e)
	}
	return b.Scene(), b.Warnings()
}

// Apply processes one event.
func (b *Builder) Apply(e command.Event) {
	defer func() { b.index++ }()

	switch ev := e.(type) {
	case command.FillStyle:
		c, err := ParseColor(ev.Color)
		if err != nil {
			b.warn(e, fmt.Errorf("%w: %v", ErrInvalidColor, err))
			c = DefaultFill
		}
		b.currentFill = &c

	case command.FillRect:
		b.lastRectWidth = ev.Width
		b.lastRectHeight = ev.Height
		b.emit(Primitive{
			Kind:  KindRect,
			Layer: LayerRect,
			Color: b.takeFill(),
			Rect: &Rect{
				Width:  ev.X + ev.Width,
				Height: ev.Y + ev.Height,
			},
		})

	case command.BeginPath:
		b.currentPath = append(b.currentPath, pathCommand{begin: true})

	case command.MoveTo, command.CubicBezierTo, command.Arc, command.ClosePath:
		b.currentPath = append(b.currentPath, pathCommand{event: e})

	case command.Fill:
		b.fill(e)

	case command.Label:
		color, err := ParseColor(ev.Color)
		if err != nil {
			b.warn(e, fmt.Errorf("%w: %v", ErrInvalidColor, err))
			color = DefaultTextColor
		}
		b.emit(Primitive{
			Kind:  KindText,
			Layer: LayerText,
			Color: color,
			Text: &Text{
				Content:  ev.Text,
				Position: Point{X: ev.X, Y: ev.Y},
				Size:     ev.Size,
			},
		})
	}
}

// Scene returns the primitives emitted so far.
func (b *Builder) Scene() Scene {
	if b.primitives == nil {
		return Empty()
	}
	return Scene{Primitives: b.primitives}
}

// Warnings returns the warnings collected so far.
func (b *Builder) Warnings() []Warning {
	return b.warnings
}

func (b *Builder) fill(e command.Event) {
	if len(b.currentPath) == 0 || !b.currentPath[0].begin {
		// Drop the malformed shape so later paths in the same tick still draw.
		b.currentPath = nil
		b.warn(e, ErrPathOrdering)
		return
	}

	path := &Path{Segments: []Segment{}}
	for _, pc := range b.currentPath[1:] {
		if pc.begin {
			// A repeated begin_path inside an open path is ignored.
			continue
		}
		path.Segments = append(path.Segments, b.segments(pc.event)...)
	}
	b.currentPath = nil

	b.emit(Primitive{
		Kind:  KindPath,
		Layer: LayerPath,
		Color: b.takeFill(),
		Path:  path,
	})
}

func (b *Builder) segments(e command.Event) []Segment {
	switch ev := e.(type) {
	case command.MoveTo:
		return []Segment{{Op: OpMoveTo, To: Point{X: ev.X, Y: ev.Y}}}
	case command.CubicBezierTo:
		return []Segment{{
			Op:    OpCubicTo,
			Ctrl1: Point{X: ev.X1, Y: ev.Y1},
			Ctrl2: Point{X: ev.X2, Y: ev.Y2},
			To:    Point{X: ev.X3, Y: ev.Y3},
		}}
	case command.Arc:
		return b.arcSegments(ev)
	case command.ClosePath:
		return []Segment{{Op: OpClose}}
	}
	return nil
}

// arcSegments places an arc relative to the most recent FillRect: the arc
// starts half a rectangle left of and above (x, y), and its center sits one
// radius further along both axes. Without a prior FillRect the remembered size
// is -1 and the offset is (+0.5, -0.5).
func (b *Builder) arcSegments(a command.Arc) []Segment {
	halfW := b.lastRectWidth / 2
	halfH := b.lastRectHeight / 2
	return []Segment{
		{Op: OpMoveTo, To: Point{X: a.X - halfW, Y: a.Y + halfH}},
		{
			Op:        OpArcTo,
			Center:    Point{X: a.X + a.Radius - halfW, Y: a.Y + a.Radius + halfH},
			Radii:     Point{X: a.Radius, Y: a.Radius},
			Sweep:     a.SweepAngle,
			XRotation: a.XRotation,
		},
	}
}

// takeFill returns the pending fill color, or the default, and clears it.
func (b *Builder) takeFill() Color {
	c := DefaultFill
	if b.currentFill != nil {
		c = *b.currentFill
	}
	b.currentFill = nil
	return c
}

func (b *Builder) emit(p Primitive) {
	b.primitives = append(b.primitives, p)
}

func (b *Builder) warn(e command.Event, err error) {
	b.warnings = append(b.warnings, Warning{Index: b.index, Event: e.Kind(), Err: err})
}

func (w Warning) Unwrap() error { return w.Err }
