package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/portal/internal/lifecycle"
	"github.com/GriffinCanCode/portal/internal/monitoring"
	"github.com/GriffinCanCode/portal/internal/tracing"
)

// LoadFunc produces a guest for a host.
type LoadFunc func(ctx context.Context, host string) (lifecycle.Guest, error)

// WorkerConfig bounds background loading.
type WorkerConfig struct {
	// MaxConcurrent caps loads running at once.
	MaxConcurrent int64
	// Rate is the sustained number of loads started per second. Zero means
	// unlimited.
	Rate float64
	// Burst is the number of loads that may start back to back.
	Burst int
}

// DefaultWorkerConfig returns the client defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{MaxConcurrent: 4, Rate: 2, Burst: 4}
}

// Worker runs loads off the tick loop and posts their results to an inbox.
// It never touches the active guest.
type Worker struct {
	load    LoadFunc
	inbox   *lifecycle.Inbox
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	metrics *monitoring.Metrics
	log     *zap.Logger

	generation atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewWorker creates a worker posting into inbox.
func NewWorker(load LoadFunc, inbox *lifecycle.Inbox, cfg WorkerConfig, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		load:    load,
		inbox:   inbox,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		limiter: rate.NewLimiter(limit, cfg.Burst),
		log:     logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// WithMetrics tracks loads in flight.
func (w *Worker) WithMetrics(m *monitoring.Metrics) *Worker {
	w.metrics = m
	return w
}

// Submit starts loading host in the background and returns the load's
// generation. Generations increase in call order; the lifecycle manager
// applies a result only if its generation is newer than the active one.
// After Close, Submit returns 0 and does nothing.
func (w *Worker) Submit(host string) uint64 {
	return w.SubmitContext(context.Background(), host)
}

// SubmitContext is Submit for callers that carry a trace: the background
// load joins the trace found in ctx. Cancelling ctx does not cancel the load.
func (w *Worker) SubmitContext(ctx context.Context, host string) uint64 {
	host = strings.TrimSpace(host)
	trace := tracing.GetTraceID(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0
	}

	gen := w.generation.Add(1)
	w.wg.Add(1)
	go w.run(tracing.WithTraceID(w.ctx, trace), gen, host)

	fields := []zap.Field{zap.String("host", host), zap.Uint64("generation", gen)}
	if trace != "" {
		fields = append(fields, zap.String("trace_id", string(trace)))
	}
	w.log.Info("Load requested", fields...)
	return gen
}

// Generation returns the most recently issued generation.
func (w *Worker) Generation() uint64 {
	return w.generation.Load()
}

func (w *Worker) run(ctx context.Context, gen uint64, host string) {
	defer w.wg.Done()

	if err := w.limiter.Wait(ctx); err != nil {
		return
	}
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer w.sem.Release(1)

	w.metrics.LoadStarted()
	defer w.metrics.LoadFinished()

	guest, err := w.load(ctx, host)
	if ctx.Err() != nil {
		// Shutting down: nobody will apply this result.
		if guest != nil {
			_ = guest.Close(context.Background())
		}
		return
	}

	w.inbox.Post(lifecycle.Result{
		Generation: gen,
		Host:       host,
		Guest:      guest,
		Err:        err,
	})
}

// Close cancels loads in progress and waits for every load goroutine to
// exit.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
}
