package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/stress"
)

// scriptedInvoker returns its verdicts in order, repeating the last one
// once the script runs out.
type scriptedInvoker struct {
	mu          sync.Mutex
	verdicts    []stress.Verdict
	calls       int
	sawDeadline bool
}

func (s *scriptedInvoker) Invoke(ctx context.Context, d stress.Descriptor) stress.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := ctx.Deadline(); ok {
		s.sawDeadline = true
	}
	i := s.calls
	s.calls++
	if i >= len(s.verdicts) {
		i = len(s.verdicts) - 1
	}
	return s.verdicts[i]
}

func (s *scriptedInvoker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingSleep captures requested delays instead of waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return r.err
}

func (r *recordingSleep) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func testDescriptor() stress.Descriptor {
	return stress.Descriptor{Seq: 7, Kind: "instance-start", Target: "inst2"}
}

func newTestExecutor(inv stress.Invoker, policy RetryPolicy) (*executor, *recordingSleep) {
	e := newExecutor(inv, policy, zap.NewNop())
	rec := &recordingSleep{}
	e.sleep = rec.sleep
	return e, rec
}

func TestExecuteSuccess(t *testing.T) {
	inv := &scriptedInvoker{verdicts: []stress.Verdict{{Class: stress.ClassSuccess}}}
	e, rec := newTestExecutor(inv, DefaultRetryPolicy())

	out, systemic := e.execute(context.Background(), testDescriptor())
	if systemic != nil {
		t.Fatalf("Expected no systemic error, got %v", systemic)
	}
	if out.Status != stress.StatusSuccess {
		t.Errorf("Expected success, got %s", out.Status)
	}
	if out.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", out.Attempts)
	}
	if out.Seq != 7 || out.Kind != "instance-start" || out.Target != "inst2" {
		t.Errorf("Expected descriptor identity on outcome, got %+v", out)
	}
	if len(rec.recorded()) != 0 {
		t.Errorf("Expected no backoff sleeps, got %v", rec.recorded())
	}
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	inv := &scriptedInvoker{verdicts: []stress.Verdict{
		{Class: stress.ClassTransient, Reason: "status 503", Err: errors.New("status 503")},
		{Class: stress.ClassTransient, Reason: "status 503", Err: errors.New("status 503")},
		{Class: stress.ClassSuccess},
	}}
	policy := RetryPolicy{MaxRetries: 2, BaseBackoff: 100 * time.Millisecond, MaxBackoff: 5 * time.Second}
	e, rec := newTestExecutor(inv, policy)

	out, systemic := e.execute(context.Background(), testDescriptor())
	if systemic != nil {
		t.Fatalf("Expected no systemic error, got %v", systemic)
	}
	if out.Status != stress.StatusSuccess {
		t.Errorf("Expected eventual success, got %s (%s)", out.Status, out.Reason)
	}
	if out.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", out.Attempts)
	}

	delays := rec.recorded()
	if len(delays) != 2 {
		t.Fatalf("Expected 2 backoff sleeps, got %d", len(delays))
	}
	// First backoff jitters around 100ms, second around 200ms.
	if delays[0] < 50*time.Millisecond || delays[0] >= 150*time.Millisecond {
		t.Errorf("First backoff %v outside [50ms, 150ms)", delays[0])
	}
	if delays[1] < 100*time.Millisecond || delays[1] >= 300*time.Millisecond {
		t.Errorf("Second backoff %v outside [100ms, 300ms)", delays[1])
	}
}

func TestExecuteRetriesExhausted(t *testing.T) {
	inv := &scriptedInvoker{verdicts: []stress.Verdict{
		{Class: stress.ClassTransient, Reason: "status 500", Err: errors.New("status 500")},
	}}
	policy := RetryPolicy{MaxRetries: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	e, _ := newTestExecutor(inv, policy)

	out, systemic := e.execute(context.Background(), testDescriptor())
	if systemic != nil {
		t.Fatalf("Expected exhausted retries to stay non-systemic, got %v", systemic)
	}
	if out.Status != stress.StatusError {
		t.Errorf("Expected error status, got %s", out.Status)
	}
	if out.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", out.Attempts)
	}
	if out.Err == nil || !errors.Is(out.Err, inv.verdicts[0].Err) {
		t.Errorf("Expected wrapped attempt error, got %v", out.Err)
	}
	if inv.callCount() != 3 {
		t.Errorf("Expected 3 invocations, got %d", inv.callCount())
	}
}

func TestExecuteExpectedFailureNotRetried(t *testing.T) {
	inv := &scriptedInvoker{verdicts: []stress.Verdict{
		{Class: stress.ClassExpectedFailure, Reason: "ObjectNotFound"},
	}}
	e, rec := newTestExecutor(inv, DefaultRetryPolicy())

	out, systemic := e.execute(context.Background(), testDescriptor())
	if systemic != nil {
		t.Fatalf("Expected no systemic error, got %v", systemic)
	}
	if out.Status != stress.StatusExpectedFailure {
		t.Errorf("Expected expected-failure status, got %s", out.Status)
	}
	if out.Reason != "ObjectNotFound" {
		t.Errorf("Expected reason carried, got %q", out.Reason)
	}
	if out.Attempts != 1 {
		t.Errorf("Expected exactly 1 attempt, got %d", out.Attempts)
	}
	if len(rec.recorded()) != 0 {
		t.Errorf("Expected no sleeps for expected failure, got %v", rec.recorded())
	}
}

func TestExecuteFatalIsSystemic(t *testing.T) {
	fatalErr := errors.New("target rejected credentials: status 401")
	inv := &scriptedInvoker{verdicts: []stress.Verdict{
		{Class: stress.ClassFatal, Reason: "credentials rejected", Err: fatalErr},
	}}
	e, _ := newTestExecutor(inv, DefaultRetryPolicy())

	out, systemic := e.execute(context.Background(), testDescriptor())
	if !errors.Is(systemic, fatalErr) {
		t.Fatalf("Expected systemic error returned, got %v", systemic)
	}
	if out.Status != stress.StatusError {
		t.Errorf("Expected error status, got %s", out.Status)
	}
	if out.Attempts != 1 {
		t.Errorf("Expected fatal to end after 1 attempt, got %d", out.Attempts)
	}
}

func TestExecuteCancelledBeforeFirstAttempt(t *testing.T) {
	inv := &scriptedInvoker{verdicts: []stress.Verdict{{Class: stress.ClassSuccess}}}
	e, _ := newTestExecutor(inv, DefaultRetryPolicy())

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(nil)

	out, systemic := e.execute(ctx, testDescriptor())
	if systemic != nil {
		t.Fatalf("Expected no systemic error, got %v", systemic)
	}
	if out.Status != stress.StatusError {
		t.Errorf("Expected error status, got %s", out.Status)
	}
	if out.Attempts != 0 {
		t.Errorf("Expected 0 attempts, got %d", out.Attempts)
	}
	if out.Reason != "run cancelled" {
		t.Errorf("Expected 'run cancelled', got %q", out.Reason)
	}
	if inv.callCount() != 0 {
		t.Errorf("Expected invoker untouched, got %d calls", inv.callCount())
	}
}

func TestExecuteDrainTimeoutCause(t *testing.T) {
	inv := &scriptedInvoker{verdicts: []stress.Verdict{{Class: stress.ClassSuccess}}}
	e, _ := newTestExecutor(inv, DefaultRetryPolicy())

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrDrainTimeout)

	out, _ := e.execute(ctx, testDescriptor())
	if out.Reason != "drain timeout" {
		t.Errorf("Expected drain timeout reason, got %q", out.Reason)
	}
	if !errors.Is(out.Err, ErrDrainTimeout) {
		t.Errorf("Expected drain timeout cause on outcome, got %v", out.Err)
	}
}

func TestExecuteCancelledDuringBackoff(t *testing.T) {
	inv := &scriptedInvoker{verdicts: []stress.Verdict{
		{Class: stress.ClassTransient, Reason: "status 503", Err: errors.New("status 503")},
	}}
	e, _ := newTestExecutor(inv, DefaultRetryPolicy())

	ctx, cancel := context.WithCancelCause(context.Background())
	rec := &recordingSleep{err: context.Canceled}
	e.sleep = func(sctx context.Context, d time.Duration) error {
		cancel(ErrDrainTimeout)
		return rec.sleep(sctx, d)
	}

	out, systemic := e.execute(ctx, testDescriptor())
	if systemic != nil {
		t.Fatalf("Expected no systemic error, got %v", systemic)
	}
	if out.Status != stress.StatusError {
		t.Errorf("Expected error status, got %s", out.Status)
	}
	if out.Attempts != 1 {
		t.Errorf("Expected 1 attempt before the interrupted backoff, got %d", out.Attempts)
	}
	if out.Reason != "drain timeout" {
		t.Errorf("Expected drain timeout reason, got %q", out.Reason)
	}
}

func TestExecuteAppliesAttemptTimeout(t *testing.T) {
	inv := &scriptedInvoker{verdicts: []stress.Verdict{{Class: stress.ClassSuccess}}}
	e, _ := newTestExecutor(inv, DefaultRetryPolicy())

	d := testDescriptor()
	d.Timeout = 30 * time.Millisecond
	e.execute(context.Background(), d)

	if !inv.sawDeadline {
		t.Error("Expected a deadline on the attempt context")
	}
}

func TestExecuteUnknownClass(t *testing.T) {
	inv := &scriptedInvoker{verdicts: []stress.Verdict{{Class: stress.Class(99)}}}
	e, _ := newTestExecutor(inv, DefaultRetryPolicy())

	out, systemic := e.execute(context.Background(), testDescriptor())
	if systemic == nil {
		t.Fatal("Expected a systemic error for an unknown class")
	}
	if out.Status != stress.StatusError {
		t.Errorf("Expected error status, got %s", out.Status)
	}
	if out.Reason != "invalid verdict" {
		t.Errorf("Expected invalid verdict reason, got %q", out.Reason)
	}
}

func TestExecuteLatencyIncludesBackoff(t *testing.T) {
	inv := &scriptedInvoker{verdicts: []stress.Verdict{
		{Class: stress.ClassTransient, Err: errors.New("status 503")},
		{Class: stress.ClassSuccess},
	}}
	policy := RetryPolicy{MaxRetries: 2, BaseBackoff: 20 * time.Millisecond, MaxBackoff: time.Second}
	e := newExecutor(inv, policy, zap.NewNop())

	out, _ := e.execute(context.Background(), testDescriptor())
	if out.Status != stress.StatusSuccess {
		t.Fatalf("Expected success, got %s", out.Status)
	}
	// The jittered 20ms backoff is at least 10ms of wall time.
	if out.Latency < 10*time.Millisecond {
		t.Errorf("Expected latency to include backoff wait, got %v", out.Latency)
	}
}

func TestBackoffCurve(t *testing.T) {
	policy := RetryPolicy{BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}

	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := policy.backoff(tt.n); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestJitterBounds(t *testing.T) {
	e := newExecutor(&scriptedInvoker{verdicts: []stress.Verdict{{}}}, DefaultRetryPolicy(), zap.NewNop())

	base := 100 * time.Millisecond
	for i := 0; i < 1000; i++ {
		got := e.jitter(base)
		if got < base/2 || got >= base+base/2 {
			t.Fatalf("jitter(%v) = %v outside [%v, %v)", base, got, base/2, base+base/2)
		}
	}
}

func TestThink(t *testing.T) {
	inv := &scriptedInvoker{verdicts: []stress.Verdict{{Class: stress.ClassSuccess}}}
	e, rec := newTestExecutor(inv, DefaultRetryPolicy())

	// No think time configured: no sleep.
	e.think(context.Background(), stress.Descriptor{})
	if len(rec.recorded()) != 0 {
		t.Fatalf("Expected no sleep without think time, got %v", rec.recorded())
	}

	// Fixed think time sleeps exactly that long.
	e.think(context.Background(), stress.Descriptor{ThinkMin: 20 * time.Millisecond, ThinkMax: 20 * time.Millisecond})
	delays := rec.recorded()
	if len(delays) != 1 || delays[0] != 20*time.Millisecond {
		t.Fatalf("Expected one 20ms think sleep, got %v", delays)
	}

	// Ranged think time stays within bounds.
	for i := 0; i < 100; i++ {
		e.think(context.Background(), stress.Descriptor{ThinkMin: 10 * time.Millisecond, ThinkMax: 30 * time.Millisecond})
	}
	for _, d := range rec.recorded()[1:] {
		if d < 10*time.Millisecond || d > 30*time.Millisecond {
			t.Fatalf("Think delay %v outside [10ms, 30ms]", d)
		}
	}
}
