package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is the kind of every fetch failure.
	ErrTransport = errors.New("transport error")

	// ErrTooLarge reports an artifact over the configured size cap.
	ErrTooLarge = errors.New("artifact exceeds size limit")

	// ErrEmptyHost reports a blank host string.
	ErrEmptyHost = errors.New("empty host")
)

// Op names the fetch step that failed.
type Op string

const (
	OpDial       Op = "dial"
	OpOpenStream Op = "open_stream"
	OpHandshake  Op = "handshake"
	OpRead       Op = "read"
)

// Error is returned by Fetcher.Fetch.
type Error struct {
	Op   Op
	Host string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Host, e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}
