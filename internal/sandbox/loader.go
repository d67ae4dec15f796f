package sandbox

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/portal/internal/command"
	"github.com/GriffinCanCode/portal/internal/logging"
	"github.com/GriffinCanCode/portal/internal/shared/id"
)

// Loader turns guest binaries into running instances. Compiled code is
// cached across loads; every instance gets its own runtime, so closing an
// instance releases all of its memory.
type Loader struct {
	config Config
	world  World
	cache  wazero.CompilationCache
	logger *logging.Logger
	log    *zap.Logger
}

// NewLoader creates a loader for the Canvas world.
func NewLoader(config Config, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{
		config: config,
		world:  Canvas,
		cache:  wazero.NewCompilationCache(),
		logger: logger,
		log:    logger.Component("sandbox"),
	}
}

// Close releases the compilation cache. Instances already loaded are not
// affected.
func (l *Loader) Close(ctx context.Context) error {
	return l.cache.Close(ctx)
}

func (l *Loader) runtimeConfig() wazero.RuntimeConfig {
	cfg := wazero.NewRuntimeConfig().WithCompilationCache(l.cache)
	if l.config.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(l.config.MemoryLimitPages)
	}
	if l.config.CallTimeout > 0 {
		cfg = cfg.WithCloseOnContextDone(true)
	}
	return cfg
}

// Load compiles, links, validates and instantiates a guest. No guest code
// runs. On failure everything built so far is released and a *LoadError is
// returned.
func (l *Loader) Load(ctx context.Context, binary []byte) (*Instance, error) {
	instanceID := id.NewInstanceID()
	rt := wazero.NewRuntimeWithConfig(ctx, l.runtimeConfig())

	inst, err := l.load(ctx, rt, instanceID, binary)
	if err != nil {
		_ = rt.Close(ctx)
		l.log.Debug("Load failed", zap.String("instance", string(instanceID)), zap.Error(err))
		return nil, err
	}

	l.log.Debug("Instance loaded",
		zap.String("instance", string(instanceID)),
		zap.Int("binary_bytes", len(binary)))
	return inst, nil
}

func (l *Loader) load(ctx context.Context, rt wazero.Runtime, instanceID id.InstanceID, binary []byte) (*Instance, error) {
	compiled, err := rt.CompileModule(ctx, binary)
	if err != nil {
		return nil, &LoadError{Stage: StageCompile, Err: err}
	}

	guestLog := l.logger.Guest(string(instanceID))
	recorder := command.NewRecorder(func(text string) {
		guestLog.Info(text)
	})

	if err := l.link(ctx, rt, recorder, usesWASI(compiled)); err != nil {
		return nil, &LoadError{Stage: StageLink, Err: err}
	}

	if err := l.world.Check(compiled); err != nil {
		return nil, &LoadError{Stage: StageContract, Err: err}
	}

	// No start functions, no filesystem, no args or environment. Clocks and
	// randomness are the only capabilities reachable through WASI.
	modConfig := wazero.NewModuleConfig().
		WithName(string(instanceID)).
		WithStartFunctions().
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)

	mod, err := rt.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		return nil, &LoadError{Stage: StageInstantiate, Err: err}
	}

	return &Instance{
		id:          instanceID,
		runtime:     rt,
		module:      mod,
		recorder:    recorder,
		setup:       mod.ExportedFunction(string(EntrySetup)),
		update:      mod.ExportedFunction(string(EntryUpdate)),
		callTimeout: l.config.CallTimeout,
	}, nil
}

// link instantiates the host module bound to recorder, plus the WASI shim
// when the guest asks for it.
func (l *Loader) link(ctx context.Context, rt wazero.Runtime, recorder *command.Recorder, wasi bool) error {
	if _, err := hostModule(rt, l.world.HostModule, recorder).Instantiate(ctx); err != nil {
		return fmt.Errorf("host module: %w", err)
	}
	if wasi {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			return fmt.Errorf("wasi: %w", err)
		}
	}
	return nil
}

// hostModule exposes exactly the Host functions to the guest. A host error
// or an out-of-range string panics, which wazero reports to the caller of
// the guest function as a trap.
func hostModule(rt wazero.Runtime, name string, host command.Host) wazero.HostModuleBuilder {
	check := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	return rt.NewHostModuleBuilder(name).
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, ptr, length uint32) {
			check(host.Print(readString(m, ptr, length)))
		}).Export("print").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, ptr, length uint32) {
			check(host.FillStyle(readString(m, ptr, length)))
		}).Export("fill_style").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, x, y, width, height float32) {
			check(host.FillRect(x, y, width, height))
		}).Export("fill_rect").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) {
			check(host.BeginPath())
		}).Export("begin_path").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, x, y, radius, sweepAngle, xRotation float32) {
			check(host.Arc(x, y, radius, sweepAngle, xRotation))
		}).Export("arc").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) {
			check(host.ClosePath())
		}).Export("close_path").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) {
			check(host.Fill())
		}).Export("fill").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, x, y float32) {
			check(host.MoveTo(x, y))
		}).Export("move_to").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, x1, y1, x2, y2, x3, y3 float32) {
			check(host.CubicBezierTo(x1, y1, x2, y2, x3, y3))
		}).Export("cubic_bezier_to").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, ptr, length uint32, x, y, size float32, colorPtr, colorLen uint32) {
			text := readString(m, ptr, length)
			color := readString(m, colorPtr, colorLen)
			check(host.Label(text, x, y, size, color))
		}).Export("label")
}

// readString copies a UTF-8 string out of guest memory.
func readString(m api.Module, ptr, length uint32) string {
	if length == 0 {
		return ""
	}
	mem := m.Memory()
	if mem == nil {
		panic(fmt.Errorf("string argument without guest memory"))
	}
	buf, ok := mem.Read(ptr, length)
	if !ok {
		panic(fmt.Errorf("string [%d, %d) outside guest memory of %d bytes", ptr, uint64(ptr)+uint64(length), mem.Size()))
	}
	return string(buf)
}
