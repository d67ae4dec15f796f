package scene

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	svg "github.com/ajstarks/svgo/float"
)

// svgDecimals is the precision of element coordinates in WriteSVG output.
const svgDecimals = 2

// WriteSVG renders the scene as a standalone SVG document of the given size.
// Scene space (origin at the center, y up) is mapped onto the SVG viewport.
func WriteSVG(w io.Writer, s Scene, width, height float64) error {
	bw := bufio.NewWriter(w)
	canvas := svg.New(bw)
	canvas.Decimals = svgDecimals

	canvas.Startview(width, height, -width/2, -height/2, width, height)
	canvas.ScaleXY(1, -1)

	// Stable sort keeps emission order within a layer.
	ordered := make([]Primitive, len(s.Primitives))
	copy(ordered, s.Primitives)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Layer < ordered[j].Layer })

	for _, p := range ordered {
		switch p.Kind {
		case KindRect:
			if p.Rect == nil {
				continue
			}
			r := p.Rect
			w, h := abs32(r.Width), abs32(r.Height)
			canvas.CenterRect(float64(r.Center.X), float64(r.Center.Y), float64(w), float64(h), fillAttrs(p.Color))
		case KindPath:
			if p.Path == nil {
				continue
			}
			d := PathData(*p.Path)
			if d == "" {
				continue
			}
			canvas.Path(d, fillAttrs(p.Color))
		case KindText:
			if p.Text == nil {
				continue
			}
			t := p.Text
			// Text is placed by transform so the y flip does not mirror glyphs.
			canvas.Text(0, 0, t.Content,
				fmt.Sprintf(`transform="translate(%s,%s) scale(1,-1)"`, num(float64(t.Position.X)), num(float64(t.Position.Y))),
				fmt.Sprintf(`font-size="%s"`, num(float64(t.Size))),
				`text-anchor="middle"`,
				`dominant-baseline="middle"`,
				fillAttrs(p.Color),
			)
		}
	}

	canvas.Gend()
	canvas.End()
	return bw.Flush()
}

// PathData converts a path to SVG path data. Arcs are expressed in endpoint
// form, split so no piece sweeps more than half a turn.
func PathData(p Path) string {
	var sb strings.Builder
	var cur, start Point
	hasCurrent := false

	write := func(format string, args ...any) {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, format, args...)
	}

	for _, seg := range p.Segments {
		switch seg.Op {
		case OpMoveTo:
			write("M %s %s", pnum(seg.To.X), pnum(seg.To.Y))
			cur, start, hasCurrent = seg.To, seg.To, true
		case OpCubicTo:
			if !hasCurrent {
				write("M 0 0")
				hasCurrent = true
			}
			write("C %s %s %s %s %s %s",
				pnum(seg.Ctrl1.X), pnum(seg.Ctrl1.Y),
				pnum(seg.Ctrl2.X), pnum(seg.Ctrl2.Y),
				pnum(seg.To.X), pnum(seg.To.Y))
			cur = seg.To
		case OpArcTo:
			if !hasCurrent {
				write("M 0 0")
				hasCurrent = true
			}
			from, pieces := arcPieces(cur, seg)
			if from != cur {
				write("L %s %s", pnum(from.X), pnum(from.Y))
			}
			sweepFlag := 0
			if seg.Sweep > 0 {
				sweepFlag = 1
			}
			rotDeg := float64(seg.XRotation) * 180 / math.Pi
			for _, end := range pieces {
				write("A %s %s %s 0 %d %s %s",
					pnum(seg.Radii.X), pnum(seg.Radii.Y), num(rotDeg), sweepFlag,
					pnum(end.X), pnum(end.Y))
			}
			if len(pieces) > 0 {
				cur = pieces[len(pieces)-1]
			} else {
				cur = from
			}
		case OpClose:
			if hasCurrent {
				write("Z")
				cur = start
			}
		}
	}
	return sb.String()
}

// arcPieces samples an arc that starts at the current point's angle around
// the center. It returns the arc's actual start point and the end points of
// pieces that each sweep at most half a turn.
func arcPieces(from Point, seg Segment) (Point, []Point) {
	cx, cy := float64(seg.Center.X), float64(seg.Center.Y)
	rx, ry := float64(seg.Radii.X), float64(seg.Radii.Y)
	rot := float64(seg.XRotation)
	sweep := float64(seg.Sweep)

	startAngle := math.Atan2(float64(from.Y)-cy, float64(from.X)-cx) - rot
	sample := func(angle float64) Point {
		x, y := rx*math.Cos(angle), ry*math.Sin(angle)
		sin, cos := math.Sincos(rot)
		return Point{
			X: float32(cx + x*cos - y*sin),
			Y: float32(cy + x*sin + y*cos),
		}
	}

	start := sample(startAngle)
	if sweep == 0 || rx == 0 || ry == 0 {
		return start, nil
	}

	// Sweeps arrive as float32, and float32(π) is slightly above π; the
	// tolerance keeps a half turn in one piece.
	n := int(math.Ceil(math.Abs(sweep)/math.Pi - 1e-6))
	if n < 1 {
		n = 1
	}
	pieces := make([]Point, 0, n)
	for i := 1; i <= n; i++ {
		pieces = append(pieces, sample(startAngle+sweep*float64(i)/float64(n)))
	}
	return start, pieces
}

func fillAttrs(c Color) string {
	hex := c.Hex()
	return fmt.Sprintf(`fill="%s" fill-opacity="%s"`, hex[:7], num(float64(channel(c.A))/255))
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func pnum(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
