// Package gate bounds how much work a run may have in flight.
//
// A Gate combines two admission controls: a fixed pool of concurrency
// slots, and an optional token-bucket rate limit on top. Acquire suspends
// the caller until both are satisfied or the context is done, so the
// dispatch loop can lean on it without polling.
package gate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Gate admits operations subject to a concurrency ceiling and an optional
// dispatch rate limit. Safe for concurrent use, though a run normally
// funnels all acquisition through its single dispatch loop.
type Gate struct {
	slots   *semaphore.Weighted
	limiter *rate.Limiter // nil when no rate limit is configured

	inFlight atomic.Int64
	high     atomic.Int64
}

// New builds a gate admitting at most concurrency operations at once.
// concurrency must be positive.
//
// opsPerSec > 0 additionally throttles admission with a token bucket of
// the given burst size (burst < 1 is treated as 1). opsPerSec <= 0 means
// no rate limit.
func New(concurrency int, opsPerSec float64, burst int) *Gate {
	if concurrency <= 0 {
		panic("gate: concurrency must be positive")
	}
	g := &Gate{slots: semaphore.NewWeighted(int64(concurrency))}
	if opsPerSec > 0 {
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opsPerSec), burst)
	}
	return g
}

// Acquire blocks until the caller holds one slot and, when rate limiting
// is configured, one token. On error nothing is held: a slot grabbed
// before a failed token wait is returned before Acquire reports it.
//
// Cancellation while waiting surfaces as ctx.Err(). A deadline too close
// to cover the token wait fails fast with the limiter's error.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.slots.Release(1)
			return err
		}
	}
	n := g.inFlight.Add(1)
	for {
		h := g.high.Load()
		if n <= h || g.high.CompareAndSwap(h, n) {
			break
		}
	}
	return nil
}

// Release returns the slot held by an earlier successful Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.slots.Release(1)
}

// InFlight returns the number of currently admitted operations.
func (g *Gate) InFlight() int64 {
	return g.inFlight.Load()
}

// HighWater returns the largest number of simultaneously admitted
// operations observed so far.
func (g *Gate) HighWater() int64 {
	return g.high.Load()
}
