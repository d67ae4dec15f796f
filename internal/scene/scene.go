package scene

import (
	"fmt"
)

// Point is a 2-D coordinate in scene space: origin at the center of the
// surface, y pointing up.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Kind identifies the variant of a Primitive.
type Kind uint8

const (
	KindRect Kind = iota + 1
	KindPath
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindRect:
		return "rect"
	case KindPath:
		return "path"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// MarshalText encodes the kind by name for JSON and CBOR feeds.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "rect":
		*k = KindRect
	case "path":
		*k = KindPath
	case "text":
		*k = KindText
	default:
		return fmt.Errorf("unknown primitive kind %q", text)
	}
	return nil
}

// Drawing layers. Within the scene, rectangles sit below paths and text sits
// above both, independent of emission order.
const (
	LayerRect = 0
	LayerPath = 1
	LayerText = 2
)

// Primitive is one drawable item. Exactly one of Rect, Path or Text is set,
// matching Kind.
type Primitive struct {
	Kind  Kind  `json:"kind"`
	Layer int   `json:"layer"`
	Color Color `json:"color"`
	Rect  *Rect `json:"rect,omitempty"`
	Path  *Path `json:"path,omitempty"`
	Text  *Text `json:"text,omitempty"`
}

// Rect is a filled, axis-aligned rectangle.
type Rect struct {
	Center Point   `json:"center"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// Text is a single label. Position is the center of the rendered text.
type Text struct {
	Content  string  `json:"content"`
	Position Point   `json:"position"`
	Size     float32 `json:"size"`
}

// SegmentOp identifies the variant of a path Segment.
type SegmentOp uint8

const (
	OpMoveTo SegmentOp = iota + 1
	OpCubicTo
	OpArcTo
	OpClose
)

func (op SegmentOp) String() string {
	switch op {
	case OpMoveTo:
		return "move"
	case OpCubicTo:
		return "cubic"
	case OpArcTo:
		return "arc"
	case OpClose:
		return "close"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(op))
	}
}

func (op SegmentOp) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

func (op *SegmentOp) UnmarshalText(text []byte) error {
	switch string(text) {
	case "move":
		*op = OpMoveTo
	case "cubic":
		*op = OpCubicTo
	case "arc":
		*op = OpArcTo
	case "close":
		*op = OpClose
	default:
		return fmt.Errorf("unknown segment op %q", text)
	}
	return nil
}

// Segment is one path element.
//
//   - OpMoveTo: To
//   - OpCubicTo: Ctrl1, Ctrl2, To
//   - OpArcTo: Center, Radii, Sweep and XRotation (radians); the arc starts at
//     the current point's angle around Center
//   - OpClose: no operands
type Segment struct {
	Op        SegmentOp `json:"op"`
	To        Point     `json:"to,omitzero"`
	Ctrl1     Point     `json:"ctrl1,omitzero"`
	Ctrl2     Point     `json:"ctrl2,omitzero"`
	Center    Point     `json:"center,omitzero"`
	Radii     Point     `json:"radii,omitzero"`
	Sweep     float32   `json:"sweep,omitempty"`
	XRotation float32   `json:"x_rotation,omitempty"`
}

// Path is a filled outline made of segments in drawing order. A path with no
// segments is valid and draws nothing.
type Path struct {
	Segments []Segment `json:"segments"`
}

// Scene is the full description handed to renderers each tick. It is rebuilt
// from scratch every tick; there is no identity between primitives of
// different scenes.
type Scene struct {
	Primitives []Primitive `json:"primitives"`
}

// Empty returns a scene with no primitives. Its primitive list is non-nil so
// it marshals as an empty array.
func Empty() Scene {
	return Scene{Primitives: []Primitive{}}
}

// Len returns the number of primitives.
func (s Scene) Len() int {
	return len(s.Primitives)
}

// Count returns how many primitives of the given kind the scene holds.
func (s Scene) Count(kind Kind) int {
	n := 0
	for _, p := range s.Primitives {
		if p.Kind == kind {
			n++
		}
	}
	return n
}
