// Package scene turns one tick's drawing commands into a list of renderable
// primitives.
//
// A Builder replays a drained command queue in order. FillStyle sets the
// color for the next shape only; FillRect and Fill consume it and fall back to
// DefaultFill. Paths are collected between BeginPath and Fill. A Fill with no
// BeginPath opening the path drops the shape and records a Warning wrapping
// ErrPathOrdering; later events in the same tick are unaffected.
//
// Scenes are plain data and marshal to JSON and CBOR. WriteSVG renders a
// scene as a standalone SVG document.
package scene
