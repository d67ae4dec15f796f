package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrDecode is the kind of every decompression failure.
var ErrDecode = errors.New("decode error")

// Error describes a failed decode.
type Error struct {
	Codec Codec
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDecode, e.Codec, e.Err)
}

// Unwrap exposes both the ErrDecode kind and the underlying cause.
func (e *Error) Unwrap() []error { return []error{ErrDecode, e.Err} }

// Codec identifies the compression format of an artifact stream.
type Codec uint8

const (
	// Brotli is the format artifact servers emit by default.
	Brotli Codec = iota
	Zstd
	Gzip
	// LZ4 uses the LZ4 frame format, not raw blocks: the decoded size is
	// not known ahead of time.
	LZ4
	// None passes bytes through unchanged.
	None
)

// String returns the configuration name of the codec.
func (c Codec) String() string {
	switch c {
	case Brotli:
		return "brotli"
	case Zstd:
		return "zstd"
	case Gzip:
		return "gzip"
	case LZ4:
		return "lz4"
	case None:
		return "none"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCodec parses a codec from its configuration name.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "brotli", "br":
		return Brotli, nil
	case "zstd":
		return Zstd, nil
	case "gzip":
		return Gzip, nil
	case "lz4":
		return LZ4, nil
	case "none", "identity":
		return None, nil
	default:
		return 0, fmt.Errorf("unknown codec: %q", name)
	}
}

// DefaultMaxDecodedBytes bounds decoded output when Decoder.MaxBytes is zero.
const DefaultMaxDecodedBytes = 128 << 20

// Decoder streams a compressed artifact into memory.
type Decoder struct {
	Codec Codec
	// MaxBytes caps the decoded size so a small malicious stream cannot
	// expand without limit. Zero means DefaultMaxDecodedBytes.
	MaxBytes int64
}

// Decode decompresses data. Malformed, truncated or oversized input returns
// an *Error wrapping ErrDecode.
func (d Decoder) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &Error{Codec: d.Codec, Err: errors.New("empty stream")}
	}

	reader, closeFn, err := openReader(d.Codec, bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Codec: d.Codec, Err: err}
	}
	defer closeFn()

	limit := d.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxDecodedBytes
	}

	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, &Error{Codec: d.Codec, Err: err}
	}
	if n > limit {
		return nil, &Error{Codec: d.Codec, Err: fmt.Errorf("decoded size exceeds %d bytes", limit)}
	}
	return out.Bytes(), nil
}

// Decode decompresses data with the default size cap.
func Decode(data []byte, c Codec) ([]byte, error) {
	return Decoder{Codec: c}.Decode(data)
}

func openReader(c Codec, src io.Reader) (io.Reader, func(), error) {
	switch c {
	case Brotli:
		return brotli.NewReader(src), func() {}, nil
	case Zstd:
		dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	case Gzip:
		gz, err := gzip.NewReader(src)
		if err != nil {
			return nil, nil, err
		}
		return gz, func() { _ = gz.Close() }, nil
	case LZ4:
		return lz4.NewReader(src), func() {}, nil
	case None:
		return src, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported codec: %s", c)
	}
}
