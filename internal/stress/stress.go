// Package stress defines the shared contracts of the workload execution
// engine: the unit of work handed to executors, the classification of
// invocation results, the terminal outcome recorded for each logical
// operation, and the lifecycle states of a run.
//
// The engine packages (workload, gate, stats, engine) depend on these types
// but not on each other's internals, and none of them know how operations
// are actually carried out. That is the Invoker's job, implemented outside
// the engine (see internal/target).
package stress

import (
	"context"
	"time"
)

// Descriptor describes one logical operation to execute against the target
// system. Descriptors are produced by the workload generator and are
// immutable once issued.
type Descriptor struct {
	// Seq is the dispatch sequence number, unique and increasing within a
	// run. It identifies the operation in logs and error samples.
	Seq uint64

	// Kind names the operation in the scenario catalog, e.g. "instance-stop".
	Kind string

	// Target is the resource the operation acts on, e.g. "inst3". Empty for
	// operations that do not address a specific resource.
	Target string

	// Params are extra template variables resolved into the request.
	Params map[string]string

	// Timeout bounds a single invocation attempt. Retries get a fresh
	// timeout each.
	Timeout time.Duration

	// ThinkMin and ThinkMax bound the random pause after the operation
	// reaches its outcome, while its concurrency slot is still held.
	// ThinkMax == 0 means no pause.
	ThinkMin time.Duration
	ThinkMax time.Duration
}

// Invoker carries out one invocation attempt for a descriptor and
// classifies the result.
//
// Implementations must be safe for concurrent use: the engine calls Invoke
// from many executor goroutines at once. Invoke must honor ctx, which
// carries the per-attempt timeout and run cancellation.
type Invoker interface {
	Invoke(ctx context.Context, d Descriptor) Verdict
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, d Descriptor) Verdict

// Invoke calls f(ctx, d).
func (f InvokerFunc) Invoke(ctx context.Context, d Descriptor) Verdict {
	return f(ctx, d)
}
