package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/portal/internal/codec"
	"github.com/GriffinCanCode/portal/internal/lifecycle"
	"github.com/GriffinCanCode/portal/internal/monitoring"
	"github.com/GriffinCanCode/portal/internal/sandbox"
	"github.com/GriffinCanCode/portal/internal/tracing"
	"github.com/GriffinCanCode/portal/internal/transport"
)

// Fetcher retrieves a compressed artifact from a host.
type Fetcher interface {
	Fetch(ctx context.Context, host string) ([]byte, error)
}

// Loader turns a guest binary into an instance.
type Loader interface {
	Load(ctx context.Context, binary []byte) (*sandbox.Instance, error)
}

// Stage names used for duration metrics.
const (
	StageFetch  = "fetch"
	StageDecode = "decode"
	StageLoad   = "load"
)

// Span names recorded per load.
const (
	spanLoad        = "load"
	spanFetch       = "fetch"
	spanDecode      = "decode"
	spanInstantiate = "instantiate"
)

// Pipeline runs fetch, decode and load for one host.
type Pipeline struct {
	Fetcher Fetcher
	Decoder codec.Decoder
	Loader  Loader
	Metrics *monitoring.Metrics
	Tracer  *tracing.Tracer
	Logger  *zap.Logger
}

// Load fetches, decompresses and loads the guest served by host. The
// returned instance has not run any guest code.
func (p *Pipeline) Load(ctx context.Context, host string) (inst *sandbox.Instance, err error) {
	root, ctx := p.Tracer.StartSpan(ctx, spanLoad)
	root.SetTag("host", host)
	defer func() {
		root.SetTag("outcome", Outcome(err))
		p.Tracer.End(root, err)
	}()

	log := p.logger().With(zap.String("host", host), zap.String("trace_id", string(root.TraceID)))

	span, _ := p.Tracer.StartSpan(ctx, spanFetch)
	timer := monitoring.NewTimer(p.Metrics, StageFetch)
	compressed, err := p.Fetcher.Fetch(ctx, host)
	timer.Stop()
	p.Tracer.End(span, err)
	if err != nil {
		p.Metrics.RecordFetch(Outcome(err), 0)
		return nil, err
	}

	span, _ = p.Tracer.StartSpan(ctx, spanDecode)
	span.SetTag("codec", p.Decoder.Codec.String())
	timer = monitoring.NewTimer(p.Metrics, StageDecode)
	binary, err := p.Decoder.Decode(compressed)
	timer.Stop()
	p.Tracer.End(span, err)
	if err != nil {
		p.Metrics.RecordFetch(Outcome(err), len(compressed))
		return nil, err
	}

	span, _ = p.Tracer.StartSpan(ctx, spanInstantiate)
	timer = monitoring.NewTimer(p.Metrics, StageLoad)
	inst, err = p.Loader.Load(ctx, binary)
	elapsed := timer.Stop()
	p.Tracer.End(span, err)
	if err != nil {
		p.Metrics.RecordFetch(Outcome(err), len(compressed))
		return nil, err
	}
	root.SetTag("instance", inst.ID())

	p.Metrics.RecordFetch(Outcome(nil), len(compressed))
	log.Info("Guest loaded",
		zap.String("instance", inst.ID()),
		zap.Int("compressed_bytes", len(compressed)),
		zap.Int("binary_bytes", len(binary)),
		zap.Duration("load_time", elapsed))
	return inst, nil
}

// Source adapts the pipeline to the Worker.
func (p *Pipeline) Source() LoadFunc {
	return func(ctx context.Context, host string) (lifecycle.Guest, error) {
		inst, err := p.Load(ctx, host)
		if err != nil {
			return nil, err
		}
		return inst, nil
	}
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Outcome classifies a load error for metrics: ok, transport, decode, load
// or error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, transport.ErrTransport):
		return "transport"
	case errors.Is(err, codec.ErrDecode):
		return "decode"
	case errors.Is(err, sandbox.ErrLoad):
		return "load"
	default:
		return "error"
	}
}
