// Package syncjob triggers backend data syncs for a store and signals when
// dependent analytics should be re-fetched.
package syncjob

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/xenodash/internal/api"
	"github.com/roach88/xenodash/internal/model"
	"github.com/roach88/xenodash/internal/stats"
)

// DefaultSettleDelay is how long to wait after a successful sync before the
// series are refreshed, giving the backend time to finish processing.
const DefaultSettleDelay = 500 * time.Millisecond

// Message markers distinguishing success from failure.
const (
	SuccessMarker = "✅"
	FailureMarker = "❌"
)

// ErrSyncInFlight is returned when Sync is called while another sync from the
// same orchestrator is outstanding. No request is sent.
var ErrSyncInFlight = errors.New("sync already in progress")

// Backend triggers the sync job.
type Backend interface {
	Sync(ctx context.Context, storeID int, token string) (string, error)
}

// SummaryFetcher re-fetches the KPI snapshot after a sync.
type SummaryFetcher interface {
	FetchSummary(ctx context.Context, storeID int, token string) stats.Result[model.Snapshot]
}

// Sleeper waits for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep waits for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome is the result of one sync attempt. It lives until the next attempt
// supersedes it.
type Outcome struct {
	Success bool
	Message string // prefixed with SuccessMarker or FailureMarker
	Err     error  // cause of a failed sync

	// Summary is the snapshot re-fetched right after a successful sync. Its
	// Kind is independent of Success: a degraded re-fetch does not turn a
	// successful sync into a failure.
	Summary *stats.Result[model.Snapshot]

	// Refreshed receives the new refresh counter value once the settle delay
	// has elapsed, then is closed. It is closed without a value when the
	// sync failed or the context ended first.
	Refreshed <-chan int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper overrides the settle-delay sleeper (for testing).
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) { o.sleeper = s }
}

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.settle = d }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// Orchestrator runs syncs one at a time and owns the refresh counter.
//
// The refresh counter is a monotonic logical clock: any observer that depends
// on "latest data" re-fetches whenever it sees the value change.
//
// Thread-safety: Orchestrator is safe for concurrent use; concurrent Sync
// calls are rejected with ErrSyncInFlight.
type Orchestrator struct {
	backend Backend
	summary SummaryFetcher
	sleeper Sleeper
	settle  time.Duration
	log     logrus.FieldLogger

	busy    atomic.Bool
	refresh atomic.Int64
}

// New creates an orchestrator.
func New(backend Backend, summary SummaryFetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		summary: summary,
		sleeper: TimerSleeper{},
		settle:  DefaultSettleDelay,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether a sync is outstanding. Triggering controls use it to
// disable re-entry.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// RefreshCount returns the current refresh counter value.
func (o *Orchestrator) RefreshCount() int64 {
	return o.refresh.Load()
}

// Sync triggers a backend sync for storeID.
//
// On success the summary is re-fetched immediately and, after the settle
// delay, the refresh counter is bumped and published on Outcome.Refreshed.
// On failure nothing is refreshed and the failure message is returned as-is.
// The busy flag is cleared when Sync returns; the delayed refresh runs in the
// background.
func (o *Orchestrator) Sync(ctx context.Context, storeID int, token string) (Outcome, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return Outcome{}, ErrSyncInFlight
	}
	defer o.busy.Store(false)

	logger := o.log.WithField("store_id", storeID)

	msg, err := o.backend.Sync(ctx, storeID, token)
	if err != nil {
		logger.WithError(err).Warn("sync failed")
		closed := make(chan int64)
		close(closed)
		return Outcome{Message: failureMessage(err), Err: err, Refreshed: closed}, nil
	}
	logger.WithField("message", msg).Info("sync complete")

	summary := o.summary.FetchSummary(ctx, storeID, token)

	refreshed := make(chan int64, 1)
	go o.refreshAfterSettle(ctx, refreshed)

	return Outcome{
		Success:   true,
		Message:   SuccessMarker + " " + msg,
		Summary:   &summary,
		Refreshed: refreshed,
	}, nil
}

func (o *Orchestrator) refreshAfterSettle(ctx context.Context, out chan<- int64) {
	defer close(out)
	if err := o.sleeper.Sleep(ctx, o.settle); err != nil {
		o.log.WithError(err).Debug("refresh skipped")
		return
	}
	out <- o.refresh.Add(1)
}

// failureMessage renders a failed sync for display.
func failureMessage(err error) string {
	if _, ok := api.AsHTTP(err); ok {
		return FailureMarker + " " + api.ServerMessage(err, "Sync failed")
	}
	return FailureMarker + " Network error during sync"
}
