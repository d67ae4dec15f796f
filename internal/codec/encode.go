package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Encode compresses data with the given codec. Artifact servers call this
// once at startup; the client never encodes.
func Encode(data []byte, c Codec) ([]byte, error) {
	var buf bytes.Buffer

	var w io.WriteCloser
	switch c {
	case Brotli:
		w = brotli.NewWriterLevel(&buf, brotli.BestCompression)
	case Zstd:
		enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		w = enc
	case Gzip:
		gz, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("gzip encoder: %w", err)
		}
		w = gz
	case LZ4:
		w = lz4.NewWriter(&buf)
	case None:
		return append([]byte(nil), data...), nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", c)
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%s encode: %w", c, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s encode: %w", c, err)
	}
	return buf.Bytes(), nil
}
