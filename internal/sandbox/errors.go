package sandbox

import (
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/sys"
)

var (
	// ErrLoad is the kind of every failure to turn a binary into an instance.
	ErrLoad = errors.New("sandbox load failed")

	// ErrGuestTrap is the kind of every failure inside a guest call.
	ErrGuestTrap = errors.New("guest trapped")
)

// Contract violations reported by World.Check.
var (
	ErrMissingExport     = errors.New("missing export")
	ErrUnknownImport     = errors.New("unknown import")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrMissingMemory     = errors.New("missing memory export")
)

// Stage names the load step that failed.
type Stage string

const (
	StageCompile     Stage = "compile"
	StageLink        Stage = "link"
	StageContract    Stage = "contract"
	StageInstantiate Stage = "instantiate"
)

// LoadError is returned by Loader.Load.
type LoadError struct {
	Stage Stage
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("sandbox %s: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrLoad, e.Err}
}

// Entry names a guest export driven by the host.
type Entry string

const (
	EntrySetup  Entry = "setup"
	EntryUpdate Entry = "update"
)

// TrapError is returned when a guest call does not complete normally.
type TrapError struct {
	Entry Entry
	Err   error
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("guest %s: %v", e.Entry, e.Err)
}

func (e *TrapError) Unwrap() []error {
	return []error{ErrGuestTrap, e.Err}
}

// Timeout reports whether the call was stopped by the call deadline. The
// module is closed in that case and every later call fails.
func (e *TrapError) Timeout() bool {
	var exit *sys.ExitError
	return errors.As(e.Err, &exit) && exit.ExitCode() == sys.ExitCodeDeadlineExceeded
}
