package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/stampede/internal/stress"
	"github.com/wesleyorama2/stampede/internal/stress/gate"
	"github.com/wesleyorama2/stampede/internal/stress/stats"
	"github.com/wesleyorama2/stampede/internal/stress/workload"
)

// Config describes one run. The CLI builds it from the loaded scenario;
// tests build it directly.
type Config struct {
	// RunID identifies the run in logs and reports. Filled with a random
	// UUID when empty.
	RunID string

	// Ops is the weighted operation mix, in configuration order.
	Ops []workload.Op

	// Seed drives the workload generator. Equal seeds replay the same
	// descriptor sequence.
	Seed int64

	// Concurrency is the in-flight operation ceiling. Required.
	Concurrency int

	// Rate throttles dispatch to this many operations per second when
	// positive; Burst is the token bucket size (0 means 1).
	Rate  float64
	Burst int

	// Iterations caps how many operations the run dispatches; 0 means no
	// cap. Duration stops dispatch after a wall-clock budget; 0 means no
	// budget. At least one of the two must be set.
	Iterations uint64
	Duration   time.Duration

	// Retry bounds transient-failure retries for every operation.
	Retry RetryPolicy

	// DrainTimeout bounds how long the run waits for in-flight operations
	// once dispatch has stopped. Zero means DefaultDrainTimeout.
	DrainTimeout time.Duration

	// Setup, when set, runs before any dispatch. A setup error aborts the
	// run before it begins.
	Setup func(ctx context.Context) error

	// Logger receives run lifecycle and per-operation debug logs. Nil
	// means logging is discarded.
	Logger *zap.Logger
}

// Result is the terminal record of a run.
type Result struct {
	RunID string          `json:"runId"`
	State stress.RunState `json:"-"`

	// Incomplete marks statistics from an aborted run as partial.
	Incomplete bool `json:"incomplete"`

	// Err is the systemic failure that aborted the run, nil otherwise.
	Err error `json:"-"`

	// Seed replays this run's workload when passed back in.
	Seed int64 `json:"seed"`

	// Dispatched counts operations handed to executors. It can exceed the
	// recorded outcome count only if the process dies mid-run.
	Dispatched uint64 `json:"dispatched"`

	Stats   *stats.Snapshot `json:"stats"`
	Started time.Time       `json:"started"`
	Elapsed time.Duration   `json:"elapsed"`
}

// Runner executes one run. A Runner is single-use: construct, Run once,
// read the Result.
type Runner struct {
	cfg     Config
	invoker stress.Invoker

	gen  *workload.Generator
	gate *gate.Gate
	agg  *stats.Aggregator
	exec *executor

	state      atomic.Int32
	dispatched atomic.Uint64

	log *zap.Logger
}

// New builds a runner for cfg driving invoker.
//
// Configuration is expected to have passed validation already; New checks
// only the invariants it cannot run without.
func New(cfg Config, invoker stress.Invoker) (*Runner, error) {
	if invoker == nil {
		return nil, fmt.Errorf("engine: invoker is required")
	}
	if len(cfg.Ops) == 0 {
		return nil, fmt.Errorf("engine: no operations configured")
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("engine: concurrency must be positive, got %d", cfg.Concurrency)
	}
	if cfg.Iterations == 0 && cfg.Duration <= 0 {
		return nil, fmt.Errorf("engine: either an iteration cap or a duration is required")
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("engine").With(zap.String("runId", cfg.RunID))

	kinds := make([]string, len(cfg.Ops))
	for i, op := range cfg.Ops {
		kinds[i] = op.Kind
	}

	r := &Runner{
		cfg:     cfg,
		invoker: invoker,
		gen:     workload.New(cfg.Ops, cfg.Seed, cfg.Iterations),
		gate:    gate.New(cfg.Concurrency, cfg.Rate, cfg.Burst),
		agg:     stats.New(kinds),
		log:     log,
	}
	r.exec = newExecutor(invoker, cfg.Retry, log)
	r.state.Store(int32(stress.RunPending))
	return r, nil
}

// State returns the run's current lifecycle state.
func (r *Runner) State() stress.RunState {
	return stress.RunState(r.state.Load())
}

// Dispatched returns how many operations have been handed to executors.
func (r *Runner) Dispatched() uint64 {
	return r.dispatched.Load()
}

// InFlight returns the number of operations currently holding a slot.
func (r *Runner) InFlight() int64 {
	return r.gate.InFlight()
}

// Stats returns the live aggregator, for progress displays. The final
// snapshot arrives in the Result.
func (r *Runner) Stats() *stats.Aggregator {
	return r.agg
}

// transition moves the state machine forward. It returns false when the
// run is not in from, which callers treat as "someone else got there
// first"; states never move backward.
func (r *Runner) transition(from, to stress.RunState) bool {
	return r.state.CompareAndSwap(int32(from), int32(to))
}

// Run drives the run to a terminal state and returns its Result.
//
// ctx is the cancellation source: cancelling it stops dispatch and drains
// in-flight operations rather than killing them. Run only returns an
// error alongside the Result when the run aborted; the error is the
// systemic failure that caused it.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if !r.transition(stress.RunPending, stress.RunRunning) {
		return nil, fmt.Errorf("engine: run already started (state %s)", r.State())
	}
	start := time.Now()
	r.log.Info("run starting",
		zap.Int("concurrency", r.cfg.Concurrency),
		zap.Float64("rate", r.cfg.Rate),
		zap.Uint64("iterations", r.cfg.Iterations),
		zap.Duration("duration", r.cfg.Duration),
		zap.Int64("seed", r.cfg.Seed))

	result := &Result{
		RunID:   r.cfg.RunID,
		Seed:    r.cfg.Seed,
		Started: start,
	}

	// Setup runs before any load. Its failure is systemic: there is
	// nothing meaningful to stress.
	if r.cfg.Setup != nil {
		if err := r.cfg.Setup(ctx); err != nil {
			err = fmt.Errorf("setup: %w", err)
			r.abortEarly(result, start, err)
			return result, err
		}
	}

	// Operations live on opCtx, which deliberately does not descend from
	// ctx: cancelling the run must stop dispatch, not in-flight work.
	// opCtx is only cancelled when the drain window closes.
	opCtx, cancelOps := context.WithCancelCause(context.Background())
	defer cancelOps(nil)

	// dispatchCtx ends the dispatch loop: external cancellation, the
	// duration budget, or a fatal operation failure below.
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()
	if r.cfg.Duration > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(dispatchCtx, r.cfg.Duration)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(context.Background())
	go func() {
		// First fatal failure stops dispatch; in-flight operations still
		// drain below.
		<-gctx.Done()
		cancelDispatch()
	}()

	r.agg.MarkStart()
	r.dispatch(dispatchCtx, g, opCtx)

	// Dispatch is over, for whatever reason. Drain what is in flight.
	r.transition(stress.RunRunning, stress.RunDraining)
	r.log.Info("draining", zap.Int64("inFlight", r.gate.InFlight()),
		zap.Uint64("dispatched", r.dispatched.Load()))

	var groupErr error
	done := make(chan struct{})
	go func() {
		groupErr = g.Wait()
		close(done)
	}()

	drain := time.NewTimer(r.cfg.DrainTimeout)
	defer drain.Stop()
	select {
	case <-done:
	case <-drain.C:
		r.log.Warn("drain timeout expired, abandoning in-flight operations",
			zap.Int64("inFlight", r.gate.InFlight()))
		cancelOps(ErrDrainTimeout)
		<-done
	}

	result.Dispatched = r.dispatched.Load()
	result.Elapsed = time.Since(start)
	result.Stats = r.agg.Snapshot()

	if groupErr != nil {
		r.transition(stress.RunDraining, stress.RunAborted)
		result.State = r.State()
		result.Incomplete = true
		result.Err = groupErr
		r.log.Error("run aborted", zap.Error(groupErr),
			zap.Int64("recorded", r.agg.Recorded()))
		return result, groupErr
	}

	r.transition(stress.RunDraining, stress.RunCompleted)
	result.State = r.State()
	r.log.Info("run completed",
		zap.Uint64("dispatched", result.Dispatched),
		zap.Duration("elapsed", result.Elapsed),
		zap.Int64("recorded", r.agg.Recorded()))
	return result, nil
}

// dispatch is the single loop that pulls descriptors and hands them to
// executor goroutines. It returns when admission fails (cancellation,
// duration budget, fatal failure) or the generator is exhausted.
//
// Exhaustion is checked before admission: once the iteration budget is
// spent there is no reason to wait for a slot or burn a rate token, and
// waiting would delay the drain while every slot is occupied.
func (r *Runner) dispatch(ctx context.Context, g *errgroup.Group, opCtx context.Context) {
	for {
		if r.gen.Exhausted() {
			r.log.Debug("workload exhausted", zap.Uint64("issued", r.gen.Issued()))
			return
		}
		if err := r.gate.Acquire(ctx); err != nil {
			r.log.Debug("dispatch stopped", zap.Error(err))
			return
		}
		d, ok := r.gen.Next()
		if !ok {
			r.gate.Release()
			return
		}
		r.dispatched.Add(1)
		g.Go(func() error {
			return r.runOne(opCtx, d)
		})
	}
}

// runOne executes one dispatched descriptor: exactly one recorded outcome
// and a guaranteed slot release, whatever path is taken.
func (r *Runner) runOne(ctx context.Context, d stress.Descriptor) error {
	defer r.gate.Release()

	out, systemic := r.exec.execute(ctx, d)
	r.agg.Record(out)
	if systemic != nil {
		r.log.Error("fatal operation failure",
			zap.Uint64("seq", d.Seq),
			zap.String("kind", d.Kind),
			zap.String("target", d.Target),
			zap.Error(systemic))
		return fmt.Errorf("%s (seq %d): %w", d.Kind, d.Seq, systemic)
	}
	if out.Status == stress.StatusError {
		r.log.Debug("operation failed",
			zap.Uint64("seq", d.Seq),
			zap.String("kind", d.Kind),
			zap.String("reason", out.Reason),
			zap.Int("attempts", out.Attempts))
	}
	r.exec.think(ctx, d)
	return nil
}

// abortEarly finalizes a run that failed before dispatch began.
func (r *Runner) abortEarly(result *Result, start time.Time, err error) {
	r.transition(stress.RunRunning, stress.RunDraining)
	r.transition(stress.RunDraining, stress.RunAborted)
	result.State = r.State()
	result.Incomplete = true
	result.Err = err
	result.Elapsed = time.Since(start)
	result.Stats = r.agg.Snapshot()
	r.log.Error("run aborted before dispatch", zap.Error(err))
}
