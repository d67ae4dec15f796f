package scene

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is a straight-alpha RGBA color with channels in [0, 1].
type Color struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
	A float32 `json:"a"`
}

// DefaultFill is used when a shape is emitted with no fill style set.
var DefaultFill = Color{R: 1, G: 0, B: 0, A: 1}

// DefaultTextColor is used when a label's color cannot be parsed.
var DefaultTextColor = Color{R: 1, G: 1, B: 1, A: 1}

// Hex returns the color as #rrggbbaa.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", channel(c.R), channel(c.G), channel(c.B), channel(c.A))
}

func (c Color) String() string { return c.Hex() }

func channel(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}

var namedColors = map[string]string{
	"black":   "#000000",
	"white":   "#ffffff",
	"red":     "#ff0000",
	"green":   "#008000",
	"lime":    "#00ff00",
	"blue":    "#0000ff",
	"yellow":  "#ffff00",
	"cyan":    "#00ffff",
	"aqua":    "#00ffff",
	"magenta": "#ff00ff",
	"fuchsia": "#ff00ff",
	"orange":  "#ffa500",
	"purple":  "#800080",
	"pink":    "#ffc0cb",
	"brown":   "#a52a2a",
	"gray":    "#808080",
	"grey":    "#808080",
	"silver":  "#c0c0c0",
	"maroon":  "#800000",
	"olive":   "#808000",
	"navy":    "#000080",
	"teal":    "#008080",
	"gold":    "#ffd700",
	"indigo":  "#4b0082",
	"violet":  "#ee82ee",
}

// ParseColor parses a CSS-style color string: a named color, #rgb, #rrggbb,
// #rrggbbaa, rgb(r, g, b), rgba(r, g, b, a) or hsl(h, s%, l%).
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Color{}, fmt.Errorf("empty color")
	}
	if s == "transparent" {
		return Color{}, nil
	}
	if hex, ok := namedColors[s]; ok {
		s = hex
	}

	switch {
	case strings.HasPrefix(s, "#"):
		return parseHex(s)
	case strings.HasPrefix(s, "rgba(") || strings.HasPrefix(s, "rgb("):
		return parseRGB(s)
	case strings.HasPrefix(s, "hsl("):
		return parseHSL(s)
	}

	// Bare hex digits are accepted for guests that omit the '#'.
	if c, err := parseHex("#" + s); err == nil {
		return c, nil
	}
	return Color{}, fmt.Errorf("unrecognized color %q", s)
}

// ParseColorOr parses s, returning fallback when s is not a valid color.
func ParseColorOr(s string, fallback Color) Color {
	c, err := ParseColor(s)
	if err != nil {
		return fallback
	}
	return c
}

func parseHex(s string) (Color, error) {
	alpha := float32(1)
	if len(s) == 9 {
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("invalid alpha in %q", s)
		}
		alpha = float32(a) / 255
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return fromColorful(c, alpha), nil
}

func parseRGB(s string) (Color, error) {
	args, err := functionArgs(s)
	if err != nil {
		return Color{}, err
	}
	if len(args) != 3 && len(args) != 4 {
		return Color{}, fmt.Errorf("%q: want 3 or 4 components", s)
	}

	var rgb [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil || v < 0 || v > 255 {
			return Color{}, fmt.Errorf("%q: invalid component %q", s, args[i])
		}
		rgb[i] = v / 255
	}

	alpha := float32(1)
	if len(args) == 4 {
		a, err := strconv.ParseFloat(args[3], 32)
		if err != nil || a < 0 || a > 1 {
			return Color{}, fmt.Errorf("%q: invalid alpha %q", s, args[3])
		}
		alpha = float32(a)
	}
	return fromColorful(colorful.Color{R: rgb[0], G: rgb[1], B: rgb[2]}, alpha), nil
}

func parseHSL(s string) (Color, error) {
	args, err := functionArgs(s)
	if err != nil {
		return Color{}, err
	}
	if len(args) != 3 {
		return Color{}, fmt.Errorf("%q: want 3 components", s)
	}
	h, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return Color{}, fmt.Errorf("%q: invalid hue", s)
	}
	sat, err := percent(args[1])
	if err != nil {
		return Color{}, fmt.Errorf("%q: %w", s, err)
	}
	light, err := percent(args[2])
	if err != nil {
		return Color{}, fmt.Errorf("%q: %w", s, err)
	}
	return fromColorful(colorful.Hsl(h, sat, light).Clamped(), 1), nil
}

func functionArgs(s string) ([]string, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("malformed color function %q", s)
	}
	parts := strings.Split(s[open+1:len(s)-1], ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

func percent(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil || v < 0 || v > 100 {
		return 0, fmt.Errorf("invalid percentage %q", s)
	}
	return v / 100, nil
}

func fromColorful(c colorful.Color, alpha float32) Color {
	return Color{R: float32(c.R), G: float32(c.G), B: float32(c.B), A: alpha}
}
