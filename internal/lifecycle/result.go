package lifecycle

import (
	"context"

	"github.com/GriffinCanCode/portal/internal/command"
)

// Guest is a loaded program the manager can drive. *sandbox.Instance is the
// production implementation.
type Guest interface {
	ID() string
	Setup(ctx context.Context) error
	Update(ctx context.Context) error
	Drain() []command.Event
	Close(ctx context.Context) error
}

// Result is the outcome of one load request. Exactly one of Guest and Err
// is set.
type Result struct {
	Generation uint64
	Host       string
	Guest      Guest
	Err        error
}
