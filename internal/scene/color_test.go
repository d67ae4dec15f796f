package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		input string
		want  Color
	}{
		{input: "red", want: Color{R: 1, A: 1}},
		{input: "  Blue ", want: Color{B: 1, A: 1}},
		{input: "#fff", want: Color{R: 1, G: 1, B: 1, A: 1}},
		{input: "#00ff00", want: Color{G: 1, A: 1}},
		{input: "00ff00", want: Color{G: 1, A: 1}},
		{input: "#0000ff00", want: Color{B: 1, A: 0}},
		{input: "rgb(255, 0, 255)", want: Color{R: 1, B: 1, A: 1}},
		{input: "rgba(0,0,0,0.5)", want: Color{A: 0.5}},
		{input: "hsl(0, 100%, 50%)", want: Color{R: 1, A: 1}},
		{input: "transparent", want: Color{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseColor(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.R, got.R, 0.01)
			assert.InDelta(t, tt.want.G, got.G, 0.01)
			assert.InDelta(t, tt.want.B, got.B, 0.01)
			assert.InDelta(t, tt.want.A, got.A, 0.01)
		})
	}
}

func TestParseColorRejects(t *testing.T) {
	for _, input := range []string{"", "notacolor", "#12", "rgb(1,2)", "rgb(300,0,0)", "rgba(0,0,0,2)", "hsl(0, 200%, 50%)", "rgb(1,2,3"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseColor(input)
			assert.Error(t, err)
		})
	}
}

func TestParseColorOr(t *testing.T) {
	assert.Equal(t, DefaultFill, ParseColorOr("nope", DefaultFill))
	assert.Equal(t, Color{G: 0, B: 1, A: 1}, ParseColorOr("#0000ff", DefaultFill))
}

func TestColorHex(t *testing.T) {
	assert.Equal(t, "#ff0000ff", DefaultFill.Hex())
	assert.Equal(t, "#00000080", Color{A: 0.5}.Hex())
	assert.Equal(t, "#ffffff00", Color{R: 2, G: 1, B: 1.5, A: -1}.Hex())
}
