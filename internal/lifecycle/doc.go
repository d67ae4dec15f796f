// Package lifecycle owns the active guest and the tick loop.
//
// Load workers post Results into an Inbox; the tick loop takes them at the
// start of every tick, so swapping the active guest never races a guest
// call. Each result carries the generation issued when its load was
// requested. A result is applied only when its generation is newer than the
// active one: if loads A then B are requested and A finishes last, B stays
// active and A is closed.
//
// Once Running, a guest stays active until a newer load replaces it. A
// guest that traps keeps running; a failed load leaves the current guest in
// place.
package lifecycle
