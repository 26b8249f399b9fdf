package stats

import (
	"sync"
	"sync/atomic"
)

// Metric names one independently fetched piece of analytics state.
type Metric string

const (
	MetricSummary Metric = "summary"
	MetricRevenue Metric = "revenue"
	MetricOrders  Metric = "orders"
)

// Tracker implements latest-request-wins for in-flight fetches.
//
// Every fetch is tagged with a generation from a monotonic counter. When its
// result arrives, the result is applied only if no newer fetch for the same
// metric has begun since. Stale responses for a superseded store or date
// range are dropped instead of overwriting fresher state.
//
// Thread-safety: Tracker is safe for concurrent use.
type Tracker struct {
	seq atomic.Int64

	mu     sync.Mutex
	latest map[Metric]int64
}

// NewTracker creates a tracker with no fetches issued.
func NewTracker() *Tracker {
	return &Tracker{latest: make(map[Metric]int64)}
}

// Begin issues a new generation for m and marks it as the latest.
func (t *Tracker) Begin(m Metric) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	gen := t.seq.Add(1)
	t.latest[m] = gen
	return gen
}

// IsLatest reports whether gen is still the newest generation for m.
func (t *Tracker) IsLatest(m Metric, gen int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[m] == gen
}

// Invalidate supersedes every in-flight fetch for the given metrics without
// starting a new one. Used on logout.
func (t *Tracker) Invalidate(metrics ...Metric) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range metrics {
		t.latest[m] = t.seq.Add(1)
	}
}

// Current returns the last issued generation across all metrics.
func (t *Tracker) Current() int64 {
	return t.seq.Load()
}
