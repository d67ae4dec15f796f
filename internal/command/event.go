package command

import "fmt"

// Kind identifies the variant of an Event.
type Kind uint8

const (
	KindLabel Kind = iota + 1
	KindFillStyle
	KindFillRect
	KindMoveTo
	KindCubicBezierTo
	KindBeginPath
	KindArc
	KindClosePath
	KindFill
)

// String returns the guest-facing name of the command.
func (k Kind) String() string {
	switch k {
	case KindLabel:
		return "label"
	case KindFillStyle:
		return "fill_style"
	case KindFillRect:
		return "fill_rect"
	case KindMoveTo:
		return "move_to"
	case KindCubicBezierTo:
		return "cubic_bezier_to"
	case KindBeginPath:
		return "begin_path"
	case KindArc:
		return "arc"
	case KindClosePath:
		return "close_path"
	case KindFill:
		return "fill"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Event is one recorded drawing command. The set of implementations is closed:
// only the types in this file satisfy it.
type Event interface {
	Kind() Kind
	isEvent()
}

// Label draws text at a position.
type Label struct {
	Text  string
	X, Y  float32
	Size  float32
	Color string
}

// FillStyle sets the color used by the next shape.
type FillStyle struct {
	Color string
}

// FillRect fills a rectangle.
type FillRect struct {
	X, Y          float32
	Width, Height float32
}

// MoveTo starts a new sub-path at a point.
type MoveTo struct {
	X, Y float32
}

// CubicBezierTo adds a cubic curve with two control points and an end point.
type CubicBezierTo struct {
	X1, Y1 float32
	X2, Y2 float32
	X3, Y3 float32
}

// BeginPath opens a path accumulation window.
type BeginPath struct{}

// Arc adds an arc segment.
type Arc struct {
	X, Y       float32
	Radius     float32
	SweepAngle float32
	XRotation  float32
}

// ClosePath closes the current sub-path.
type ClosePath struct{}

// Fill fills the accumulated path.
type Fill struct{}

func (Label) Kind() Kind         { return KindLabel }
func (FillStyle) Kind() Kind     { return KindFillStyle }
func (FillRect) Kind() Kind      { return KindFillRect }
func (MoveTo) Kind() Kind        { return KindMoveTo }
func (CubicBezierTo) Kind() Kind { return KindCubicBezierTo }
func (BeginPath) Kind() Kind     { return KindBeginPath }
func (Arc) Kind() Kind           { return KindArc }
func (ClosePath) Kind() Kind     { return KindClosePath }
func (Fill) Kind() Kind          { return KindFill }

func (Label) isEvent()         {}
func (FillStyle) isEvent()     {}
func (FillRect) isEvent()      {}
func (MoveTo) isEvent()        {}
func (CubicBezierTo) isEvent() {}
func (BeginPath) isEvent()     {}
func (Arc) isEvent()           {}
func (ClosePath) isEvent()     {}
func (Fill) isEvent()          {}
