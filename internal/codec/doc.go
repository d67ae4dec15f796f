// Package codec decompresses fetched artifacts.
//
// An artifact is a single compressed stream whose decoded contents are the
// guest's WebAssembly binary. Brotli is the default format; zstd, gzip and
// LZ4 frames are accepted when the client and server are configured alike.
//
// Decoding is bounded: output larger than Decoder.MaxBytes is rejected as a
// decode error, the same as malformed or truncated input. A failed decode
// aborts only the load attempt it belongs to.
package codec
