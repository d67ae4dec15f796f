// Package main serves a single guest module over QUIC for local development.
//
// The module is compressed once at startup and written to every client that
// sends the artifact handshake.
//
// Usage:
//
//	./portal-serve --wasm guest.wasm --codec brotli --addr :4433
//	./portal-serve --wasm guest.wasm --cert cert.pem --key key.pem
package main
