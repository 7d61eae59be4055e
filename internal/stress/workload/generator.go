// Package workload generates the stream of operation descriptors a run
// executes.
//
// Selection is weighted-random over the configured operation kinds: each
// kind is chosen with probability proportional to its weight, and kinds
// with equal weight are distinguished only by their stable configuration
// order. All randomness comes from a private seeded RNG, so two generators
// built from the same operation list and seed produce identical descriptor
// sequences.
package workload

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/wesleyorama2/stampede/internal/stress"
)

// Op describes one operation kind available for selection.
type Op struct {
	// Kind names the operation in the scenario catalog.
	Kind string

	// Weight sets the relative selection frequency. Must be positive.
	Weight int

	// TargetPrefix and Targets define the resource pool the kind rotates
	// over: each descriptor addresses one of TargetPrefix+"0" ..
	// TargetPrefix+itoa(Targets-1). Kinds that share a prefix contend for
	// the same resources. Targets == 0 means the kind addresses no
	// specific resource.
	TargetPrefix string
	Targets      int

	// Timeout bounds each invocation attempt for this kind.
	Timeout time.Duration

	// ThinkMin and ThinkMax bound the random post-operation pause, copied
	// onto every descriptor of this kind.
	ThinkMin time.Duration
	ThinkMax time.Duration

	// Params are template variables passed through to every descriptor of
	// this kind. Treated as read-only.
	Params map[string]string
}

// Generator produces descriptors one at a time until its iteration cap is
// reached.
//
// A Generator is not safe for concurrent use. The run controller's single
// dispatch loop is its only intended caller.
type Generator struct {
	ops   []Op
	cum   []int64
	total int64
	rng   *rand.Rand
	limit uint64
	seq   uint64
}

// New builds a generator over ops.
//
// Parameters:
//   - ops: the selectable operation kinds, in configuration order. Every
//     weight must be positive; New panics otherwise, since validation is
//     the configuration layer's job and a zero total weight cannot be
//     selected from.
//   - seed: seeds the private RNG. Equal seeds yield equal sequences.
//   - limit: maximum number of descriptors to issue; 0 means unlimited.
func New(ops []Op, seed int64, limit uint64) *Generator {
	if len(ops) == 0 {
		panic("workload: no operations configured")
	}
	cum := make([]int64, len(ops))
	var total int64
	for i, op := range ops {
		if op.Weight <= 0 {
			panic("workload: operation " + op.Kind + " has non-positive weight")
		}
		total += int64(op.Weight)
		cum[i] = total
	}
	return &Generator{
		ops:   ops,
		cum:   cum,
		total: total,
		rng:   rand.New(rand.NewSource(seed)),
		limit: limit,
	}
}

// Next returns the next descriptor to dispatch. It never blocks.
//
// The second return value is false once the iteration cap has been
// reached, and stays false on every later call.
func (g *Generator) Next() (stress.Descriptor, bool) {
	if g.limit > 0 && g.seq >= g.limit {
		return stress.Descriptor{}, false
	}
	g.seq++

	n := g.rng.Int63n(g.total)
	idx := 0
	for n >= g.cum[idx] {
		idx++
	}
	op := g.ops[idx]

	d := stress.Descriptor{
		Seq:      g.seq,
		Kind:     op.Kind,
		Params:   op.Params,
		Timeout:  op.Timeout,
		ThinkMin: op.ThinkMin,
		ThinkMax: op.ThinkMax,
	}
	if op.Targets > 0 {
		d.Target = op.TargetPrefix + strconv.Itoa(g.rng.Intn(op.Targets))
	}
	return d, true
}

// Issued returns how many descriptors have been produced so far.
func (g *Generator) Issued() uint64 {
	return g.seq
}

// Exhausted reports whether the iteration cap has been reached. It lets
// the dispatcher skip admission once there is nothing left to issue.
func (g *Generator) Exhausted() bool {
	return g.limit > 0 && g.seq >= g.limit
}
