package feed

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/GriffinCanCode/portal/internal/scene"
)

// Encoding selects the wire format of scene frames.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingCBOR Encoding = "cbor"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
)

// ParseEncoding parses "json" or "cbor".
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case EncodingJSON, "":
		return EncodingJSON, nil
	case EncodingCBOR:
		return EncodingCBOR, nil
	default:
		return "", fmt.Errorf("unknown feed encoding %q", s)
	}
}

// Frame is one published scene.
type Frame struct {
	Seq   uint64      `json:"seq"`
	Scene scene.Scene `json:"scene"`
}

// encMode uses Core Deterministic Encoding so identical scenes produce
// identical bytes. Enum types encode through MarshalText, matching JSON.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	opts := cbor.CoreDetEncOptions()
	opts.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = opts.EncMode()
	if err != nil {
		panic("feed: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("feed: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes a frame.
func (e Encoding) Marshal(f Frame) ([]byte, error) {
	if e == EncodingCBOR {
		return encMode.Marshal(f)
	}
	return json.Marshal(f)
}

// Unmarshal decodes a frame.
func (e Encoding) Unmarshal(data []byte, f *Frame) error {
	if e == EncodingCBOR {
		return decMode.Unmarshal(data, f)
	}
	return json.Unmarshal(data, f)
}

// ContentType returns the MIME type of the encoding.
func (e Encoding) ContentType() string {
	if e == EncodingCBOR {
		return contentTypeCBOR
	}
	return contentTypeJSON
}
