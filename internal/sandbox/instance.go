package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/GriffinCanCode/portal/internal/command"
	"github.com/GriffinCanCode/portal/internal/shared/id"
)

// Instance is one loaded guest together with its runtime, memory and command
// queue. Setup, Update and Drain are called from the tick loop only.
type Instance struct {
	id          id.InstanceID
	runtime     wazero.Runtime
	module      api.Module
	recorder    *command.Recorder
	setup       api.Function
	update      api.Function
	callTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

var errClosed = errors.New("instance closed")

// ID returns the instance identifier used in logs.
func (i *Instance) ID() string {
	return string(i.id)
}

// Setup runs the guest's setup export.
func (i *Instance) Setup(ctx context.Context) error {
	return i.call(ctx, EntrySetup, i.setup)
}

// Update runs the guest's update export.
func (i *Instance) Update(ctx context.Context) error {
	return i.call(ctx, EntryUpdate, i.update)
}

func (i *Instance) call(ctx context.Context, entry Entry, fn api.Function) error {
	if i.module.IsClosed() {
		return &TrapError{Entry: entry, Err: errClosed}
	}
	if i.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.callTimeout)
		defer cancel()
	}
	if _, err := fn.Call(ctx); err != nil {
		return &TrapError{Entry: entry, Err: err}
	}
	return nil
}

// Drain returns the commands recorded since the last drain.
func (i *Instance) Drain() []command.Event {
	return i.recorder.Drain()
}

// Pending returns the number of recorded, undrained commands.
func (i *Instance) Pending() int {
	return i.recorder.Pending()
}

// Close destroys the instance and its runtime. It is safe to call more than
// once.
func (i *Instance) Close(ctx context.Context) error {
	i.closeOnce.Do(func() {
		i.closeErr = i.runtime.Close(ctx)
	})
	return i.closeErr
}
