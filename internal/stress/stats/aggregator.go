// Package stats aggregates operation outcomes during a run.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/stampede/internal/stress"
)

// Histogram bounds: 1 microsecond to 1 hour at 3 significant figures.
const (
	histMin     = 1
	histMax     = 3600000000
	histSigFigs = 3
)

// Aggregator collects per-kind outcome statistics from many executor
// goroutines at once.
//
// Counters are atomic, histograms and error samples sit behind a per-kind
// mutex, and kinds known up front get their shard pre-built so the hot
// path is a lock-free map read. Kinds that only show up at run time fall
// back to a lazily created shard behind an RWMutex.
type Aggregator struct {
	static map[string]*shard

	extraMu sync.RWMutex
	extra   map[string]*shard

	allMu sync.Mutex
	all   *hdrhistogram.Histogram

	// Outcomes recorded across all kinds, updated without any lock.
	recorded atomic.Int64

	startNanos atomic.Int64
}

type shard struct {
	successes atomic.Int64
	failures  atomic.Int64
	errors    atomic.Int64

	mu       sync.Mutex
	hist     *hdrhistogram.Histogram
	firstErr *ErrorSample
}

func newShard() *shard {
	return &shard{hist: hdrhistogram.New(histMin, histMax, histSigFigs)}
}

// New builds an aggregator with a shard per known operation kind.
func New(kinds []string) *Aggregator {
	a := &Aggregator{
		static: make(map[string]*shard, len(kinds)),
		extra:  make(map[string]*shard),
		all:    hdrhistogram.New(histMin, histMax, histSigFigs),
	}
	for _, k := range kinds {
		a.static[k] = newShard()
	}
	a.startNanos.Store(time.Now().UnixNano())
	return a
}

// MarkStart resets the throughput clock. The run controller calls it when
// dispatch actually begins, so setup time is not counted against
// throughput.
func (a *Aggregator) MarkStart() {
	a.startNanos.Store(time.Now().UnixNano())
}

// Record folds one terminal outcome into the statistics. Safe for
// concurrent use; no outcome is ever dropped.
func (a *Aggregator) Record(o stress.Outcome) {
	s := a.shard(o.Kind)

	switch o.Status {
	case stress.StatusSuccess:
		s.successes.Add(1)
	case stress.StatusExpectedFailure:
		s.failures.Add(1)
	case stress.StatusError:
		s.errors.Add(1)
	}

	micros := o.Latency.Microseconds()
	if micros < histMin {
		micros = histMin
	}
	if micros > histMax {
		micros = histMax
	}

	s.mu.Lock()
	s.hist.RecordValue(micros)
	if o.Status == stress.StatusError && s.firstErr == nil {
		s.firstErr = &ErrorSample{Seq: o.Seq, Target: o.Target, Reason: o.Reason}
		if o.Err != nil {
			s.firstErr.Err = o.Err.Error()
		}
	}
	s.mu.Unlock()

	a.allMu.Lock()
	a.all.RecordValue(micros)
	a.allMu.Unlock()

	a.recorded.Add(1)
}

// Recorded returns how many outcomes have been recorded so far. Cheap
// enough for progress displays.
func (a *Aggregator) Recorded() int64 {
	return a.recorded.Load()
}

func (a *Aggregator) shard(kind string) *shard {
	if s, ok := a.static[kind]; ok {
		return s
	}
	a.extraMu.RLock()
	s, ok := a.extra[kind]
	a.extraMu.RUnlock()
	if ok {
		return s
	}
	a.extraMu.Lock()
	defer a.extraMu.Unlock()
	if s, ok := a.extra[kind]; ok {
		return s
	}
	s = newShard()
	a.extra[kind] = s
	return s
}

// Snapshot returns an immutable copy of the current statistics. It can be
// called at any time, including while recording continues; each shard is
// locked only long enough to copy its histogram.
func (a *Aggregator) Snapshot() *Snapshot {
	snap := &Snapshot{
		Kinds:     make(map[string]KindStats),
		Timestamp: time.Now(),
	}

	a.extraMu.RLock()
	shards := make(map[string]*shard, len(a.static)+len(a.extra))
	for k, s := range a.static {
		shards[k] = s
	}
	for k, s := range a.extra {
		shards[k] = s
	}
	a.extraMu.RUnlock()

	for kind, s := range shards {
		ks := KindStats{
			Successes: s.successes.Load(),
			Failures:  s.failures.Load(),
			Errors:    s.errors.Load(),
		}
		ks.Count = ks.Successes + ks.Failures + ks.Errors

		s.mu.Lock()
		ks.Latency = latencyStats(s.hist)
		if s.firstErr != nil {
			sample := *s.firstErr
			ks.FirstError = &sample
		}
		s.mu.Unlock()

		snap.Kinds[kind] = ks
		snap.Total.Successes += ks.Successes
		snap.Total.Failures += ks.Failures
		snap.Total.Errors += ks.Errors
	}
	snap.Total.Count = snap.Total.Successes + snap.Total.Failures + snap.Total.Errors

	a.allMu.Lock()
	snap.Latency = latencyStats(a.all)
	a.allMu.Unlock()

	snap.Elapsed = time.Since(time.Unix(0, a.startNanos.Load()))
	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.Throughput = float64(snap.Total.Count) / secs
	}
	return snap
}

func latencyStats(h *hdrhistogram.Histogram) LatencyStats {
	if h.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Min:   time.Duration(h.Min()) * time.Microsecond,
		Max:   time.Duration(h.Max()) * time.Microsecond,
		Mean:  time.Duration(h.Mean()) * time.Microsecond,
		P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:   time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:   time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count: h.TotalCount(),
	}
}

// Snapshot is a point-in-time view of a run's statistics. Snapshots are
// plain values; mutating one has no effect on the aggregator.
type Snapshot struct {
	Kinds      map[string]KindStats `json:"kinds"`
	Total      Counts               `json:"total"`
	Latency    LatencyStats         `json:"latency"`
	Elapsed    time.Duration        `json:"elapsed"`
	Throughput float64              `json:"throughput"`
	Timestamp  time.Time            `json:"timestamp"`
}

// Counts holds outcome tallies. Count is always the sum of the other
// three: Failures are expected failures, Errors are unexpected ones.
type Counts struct {
	Count     int64 `json:"count"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	Errors    int64 `json:"errors"`
}

// KindStats holds the statistics of one operation kind.
type KindStats struct {
	Count     int64 `json:"count"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	Errors    int64 `json:"errors"`

	Latency LatencyStats `json:"latency"`

	// FirstError is the first unexpected error recorded for this kind,
	// nil if none occurred.
	FirstError *ErrorSample `json:"firstError,omitempty"`
}

// LatencyStats summarizes a latency distribution. Zero when no outcomes
// were recorded.
type LatencyStats struct {
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P90   time.Duration `json:"p90"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Count int64         `json:"count"`
}

// ErrorSample preserves enough of one failed operation to start
// debugging from.
type ErrorSample struct {
	Seq    uint64 `json:"seq"`
	Target string `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`
	Err    string `json:"error,omitempty"`
}
