// Package engine drives a stress run: it dispatches generated operations
// through the admission gate, executes each one to a single terminal
// outcome with retries, and walks the run through its lifecycle states.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/stress"
)

// ErrDrainTimeout is the cancellation cause applied to in-flight
// operations abandoned when the drain window closes.
var ErrDrainTimeout = errors.New("drain timeout")

// Retry policy defaults.
const (
	DefaultMaxRetries   = 2
	DefaultBaseBackoff  = 250 * time.Millisecond
	DefaultMaxBackoff   = 5 * time.Second
	DefaultDrainTimeout = 30 * time.Second
)

// RetryPolicy bounds how transient failures are retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// operation makes at most MaxRetries+1 attempts.
	MaxRetries int

	// BaseBackoff is the delay before the first retry. Each further retry
	// doubles it, capped at MaxBackoff, with ±50% jitter applied.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy returns the retry policy used when the scenario does
// not override it.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// backoff returns the uncapped-jitter delay before retry n (0-based).
func (p RetryPolicy) backoff(n int) time.Duration {
	d := p.BaseBackoff
	if d <= 0 {
		d = DefaultBaseBackoff
	}
	max := p.MaxBackoff
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	for i := 0; i < n && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

// sleepFunc pauses for d or until ctx is done, returning the ctx error in
// the latter case. Swapped out in tests so retry timing can be observed
// without real waiting.
type sleepFunc func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// executor runs single descriptors to completion. One instance serves all
// of a run's goroutines; its only shared mutable state is the jitter RNG.
type executor struct {
	invoker stress.Invoker
	policy  RetryPolicy
	sleep   sleepFunc
	log     *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func newExecutor(invoker stress.Invoker, policy RetryPolicy, log *zap.Logger) *executor {
	return &executor{
		invoker: invoker,
		policy:  policy,
		sleep:   realSleep,
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// execute runs d until it reaches a terminal classification and returns
// the one Outcome that describes it. The second return value is non-nil
// only for fatal verdicts, which the caller treats as a systemic failure
// of the whole run.
//
// ctx is the operation context: it outlives run cancellation so in-flight
// work can finish during drain, and is only cancelled when the drain
// window closes.
func (e *executor) execute(ctx context.Context, d stress.Descriptor) (stress.Outcome, error) {
	out := stress.Outcome{Seq: d.Seq, Kind: d.Kind, Target: d.Target}
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			e.finishCancelled(&out, ctx, start)
			return out, nil
		}

		v := e.attempt(ctx, d)
		out.Attempts = attempt + 1

		switch v.Class {
		case stress.ClassSuccess:
			out.Status = stress.StatusSuccess
			out.Latency = time.Since(start)
			return out, nil

		case stress.ClassExpectedFailure:
			out.Status = stress.StatusExpectedFailure
			out.Reason = v.Reason
			out.Latency = time.Since(start)
			return out, nil

		case stress.ClassFatal:
			out.Status = stress.StatusError
			out.Reason = v.Reason
			out.Err = v.Err
			out.Latency = time.Since(start)
			return out, v.Err

		case stress.ClassTransient:
			if attempt >= e.policy.MaxRetries {
				out.Status = stress.StatusError
				out.Reason = v.Reason
				out.Err = fmt.Errorf("retries exhausted after %d attempts: %w", out.Attempts, v.Err)
				out.Latency = time.Since(start)
				return out, nil
			}
			delay := e.jitter(e.policy.backoff(attempt))
			e.log.Debug("transient failure, backing off",
				zap.Uint64("seq", d.Seq),
				zap.String("kind", d.Kind),
				zap.Int("attempt", out.Attempts),
				zap.Duration("backoff", delay),
				zap.Error(v.Err))
			if err := e.sleep(ctx, delay); err != nil {
				e.finishCancelled(&out, ctx, start)
				return out, nil
			}

		default:
			// An invoker returning an unknown class is a programming error
			// in the target layer; treat it like a fatal failure so it
			// cannot pass silently.
			out.Status = stress.StatusError
			out.Reason = "invalid verdict"
			out.Err = fmt.Errorf("invoker returned unknown class %d", v.Class)
			out.Latency = time.Since(start)
			return out, out.Err
		}
	}
}

// attempt performs one invocation under the per-attempt timeout.
func (e *executor) attempt(ctx context.Context, d stress.Descriptor) stress.Verdict {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	return e.invoker.Invoke(ctx, d)
}

// finishCancelled fills out for an operation ended by operation-context
// cancellation, before or between attempts.
func (e *executor) finishCancelled(out *stress.Outcome, ctx context.Context, start time.Time) {
	cause := context.Cause(ctx)
	out.Status = stress.StatusError
	out.Err = cause
	out.Latency = time.Since(start)
	if cause != nil && !errors.Is(cause, context.Canceled) {
		out.Reason = cause.Error()
	} else {
		out.Reason = "run cancelled"
	}
}

// think pauses for the descriptor's random think time, slot still held.
func (e *executor) think(ctx context.Context, d stress.Descriptor) {
	if d.ThinkMax <= 0 {
		return
	}
	delay := d.ThinkMin
	if d.ThinkMax > d.ThinkMin {
		e.rngMu.Lock()
		delay += time.Duration(e.rng.Int63n(int64(d.ThinkMax - d.ThinkMin + 1)))
		e.rngMu.Unlock()
	}
	if delay > 0 {
		_ = e.sleep(ctx, delay)
	}
}

// jitter spreads d uniformly over [d/2, 3d/2).
func (e *executor) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return d/2 + time.Duration(e.rng.Int63n(int64(d)))
}
