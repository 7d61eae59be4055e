package stampede

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/stress"
	"github.com/wesleyorama2/stampede/internal/stress/engine"
	"github.com/wesleyorama2/stampede/internal/stress/stats"
	"github.com/wesleyorama2/stampede/internal/stress/workload"
	"github.com/wesleyorama2/stampede/internal/target"
)

// Aliases for the types a caller touches, so programmatic users never
// import internal packages.
type (
	// Scenario is a loaded stress scenario.
	Scenario = config.Scenario

	// Result is the terminal record of a run.
	Result = engine.Result

	// Snapshot is a point-in-time statistics view.
	Snapshot = stats.Snapshot

	// RunState is a run's lifecycle state.
	RunState = stress.RunState
)

// Load reads a scenario file, applies defaults, and validates it.
func Load(path string) (*Scenario, error) {
	sc, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Run is one prepared stress run. Runs are single-use: prepare with
// New, execute with Start, read the Result.
type Run struct {
	id     string
	runner *engine.Runner
}

// New prepares a run of sc.
//
// Parameters:
//   - sc: the scenario, already defaulted and validated (see Load)
//   - logger: receives run lifecycle logs; nil discards them
//
// Returns:
//   - *Run: ready to Start
//   - error: when the scenario cannot be turned into a runnable config
func New(sc *Scenario, logger *zap.Logger) (*Run, error) {
	if sc == nil {
		return nil, fmt.Errorf("stampede: scenario is required")
	}
	runID := uuid.NewString()
	client := target.NewClient(sc, runID, logger)
	runner, err := engine.New(engineConfig(sc, runID, client, logger), client)
	if err != nil {
		return nil, err
	}
	return &Run{id: runID, runner: runner}, nil
}

// ID returns the run's identifier, also exposed to request templates
// as {{run}}.
func (r *Run) ID() string {
	return r.id
}

// Start executes the run until its budget is spent or ctx is
// cancelled, whichever comes first. Cancellation drains in-flight
// operations rather than killing them.
//
// The returned error is non-nil only when the run aborted; the Result
// is always returned and carries whatever completed.
func (r *Run) Start(ctx context.Context) (*Result, error) {
	return r.runner.Run(ctx)
}

// State returns the run's current lifecycle state.
func (r *Run) State() RunState {
	return r.runner.State()
}

// Progress returns a consistent snapshot of the statistics so far. Safe
// to call from another goroutine while the run executes.
func (r *Run) Progress() *Snapshot {
	return r.runner.Stats().Snapshot()
}

// InFlight returns the number of operations currently executing.
func (r *Run) InFlight() int64 {
	return r.runner.InFlight()
}

// Dispatched returns how many operations have been handed out so far.
func (r *Run) Dispatched() uint64 {
	return r.runner.Dispatched()
}

// engineConfig maps a validated scenario onto the engine's knobs.
func engineConfig(sc *Scenario, runID string, client *target.Client, logger *zap.Logger) engine.Config {
	cfg := engine.Config{
		RunID:        runID,
		Ops:          workloadOps(sc),
		Seed:         sc.Seed,
		Concurrency:  sc.Concurrency,
		Rate:         sc.Rate,
		Burst:        sc.Burst,
		Iterations:   sc.Iterations,
		Duration:     sc.Duration.GetDuration(0),
		Retry:        retryPolicy(sc.Retry),
		DrainTimeout: sc.DrainTimeout.GetDuration(engine.DefaultDrainTimeout),
		Logger:       logger,
	}
	if len(sc.Setup) > 0 {
		cfg.Setup = client.RunSetup
	}
	return cfg
}

func workloadOps(sc *Scenario) []workload.Op {
	ops := make([]workload.Op, 0, len(sc.Operations))
	for _, oc := range sc.Operations {
		op := workload.Op{
			Kind:         oc.Name,
			Weight:       oc.Weight,
			TargetPrefix: oc.TargetPrefix,
			Targets:      oc.Targets,
			Timeout:      oc.Timeout.GetDuration(config.DefaultTargetTimeout),
			Params:       oc.Params,
		}
		if oc.Think != nil {
			op.ThinkMin = oc.Think.Min.GetDuration(0)
			op.ThinkMax = oc.Think.Max.GetDuration(0)
		}
		ops = append(ops, op)
	}
	return ops
}

func retryPolicy(rc config.RetryConfig) engine.RetryPolicy {
	policy := engine.DefaultRetryPolicy()
	if rc.MaxRetries != nil {
		policy.MaxRetries = *rc.MaxRetries
	}
	policy.BaseBackoff = rc.BaseBackoff.GetDuration(policy.BaseBackoff)
	policy.MaxBackoff = rc.MaxBackoff.GetDuration(policy.MaxBackoff)
	return policy
}
