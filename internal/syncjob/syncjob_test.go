package syncjob

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xenodash/internal/api"
	"github.com/roach88/xenodash/internal/stats"
	"github.com/roach88/xenodash/internal/testutil"
)

type fixture struct {
	orch    *Orchestrator
	backend *testutil.Backend
	sleeper *testutil.RecordingSleeper
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	b := testutil.NewBackend(t)
	logger, _ := test.NewNullLogger()
	client, err := api.New(b.URL(), api.WithLogger(logger))
	require.NoError(t, err)
	sleeper := testutil.NewRecordingSleeper()
	orch := New(client, stats.New(client, logger), WithSleeper(sleeper), WithLogger(logger))
	return fixture{orch: orch, backend: b, sleeper: sleeper}
}

// waitRefresh drains Refreshed and returns the value, if any.
func waitRefresh(t *testing.T, out Outcome) (int64, bool) {
	t.Helper()
	select {
	case v, ok := <-out.Refreshed:
		return v, ok
	case <-time.After(2 * time.Second):
		t.Fatal("Refreshed never closed")
		return 0, false
	}
}

func TestSync_SuccessRefetchesSummaryThenRefreshes(t *testing.T) {
	f := newFixture(t)
	f.backend.SetSyncMessage(1, "Synced 3 orders")

	out, err := f.orch.Sync(context.Background(), 1, testutil.DemoToken)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, "✅ Synced 3 orders", out.Message)
	require.NotNil(t, out.Summary)
	assert.Equal(t, stats.Live, out.Summary.Kind)

	v, ok := waitRefresh(t, out)
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, int64(1), f.orch.RefreshCount())
	assert.Equal(t, []time.Duration{DefaultSettleDelay}, f.sleeper.Slept())

	// Sync, then the immediate summary re-fetch
	reqs := f.backend.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/sync/1", reqs[0].Path)
	assert.Equal(t, "/stats/1", reqs[1].Path)
}

func TestSync_RefreshCounterIsMonotonic(t *testing.T) {
	f := newFixture(t)

	var values []int64
	for i := 0; i < 3; i++ {
		out, err := f.orch.Sync(context.Background(), 2, testutil.DemoToken)
		require.NoError(t, err)
		v, _ := waitRefresh(t, out)
		values = append(values, v)
	}
	assert.Equal(t, []int64{1, 2, 3}, values)
}

func TestSync_HTTPErrorSurfacesServerMessage(t *testing.T) {
	f := newFixture(t)
	f.backend.FailWith("/sync/1", http.StatusBadGateway, "Shopify API rate limited")

	out, err := f.orch.Sync(context.Background(), 1, testutil.DemoToken)
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, "❌ Shopify API rate limited", out.Message)
	assert.Nil(t, out.Summary)
	_, ok := waitRefresh(t, out)
	assert.False(t, ok, "no refresh after a failed sync")
	assert.Equal(t, int64(0), f.orch.RefreshCount())
	assert.Empty(t, f.backend.RequestsTo("/stats/1"))
}

func TestSync_HTTPErrorWithoutMessage(t *testing.T) {
	f := newFixture(t)
	f.backend.FailWith("/sync/1", http.StatusInternalServerError, "")

	out, err := f.orch.Sync(context.Background(), 1, testutil.DemoToken)
	require.NoError(t, err)
	assert.Equal(t, "❌ Sync failed", out.Message)
}

func TestSync_NetworkError(t *testing.T) {
	f := newFixture(t)
	f.backend.Drop("/sync/1")

	out, err := f.orch.Sync(context.Background(), 1, testutil.DemoToken)
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, "❌ Network error during sync", out.Message)
	assert.True(t, api.IsNetwork(out.Err))
}

func TestSync_DecodeErrorReadsAsNetworkError(t *testing.T) {
	f := newFixture(t)
	f.backend.Garbage("/sync/1")

	out, _ := f.orch.Sync(context.Background(), 1, testutil.DemoToken)
	assert.Equal(t, "❌ Network error during sync", out.Message)
}

func TestSync_SuccessSurvivesFailedSummaryRefetch(t *testing.T) {
	f := newFixture(t)
	f.backend.Drop("/stats/1")

	out, err := f.orch.Sync(context.Background(), 1, testutil.DemoToken)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, "✅ Synced store 1", out.Message)
	require.NotNil(t, out.Summary)
	assert.Equal(t, stats.Degraded, out.Summary.Kind)
	_, ok := waitRefresh(t, out)
	assert.True(t, ok)
}

func TestSync_RejectsReentry(t *testing.T) {
	f := newFixture(t)
	release := f.backend.Gate("/sync/1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.orch.Sync(context.Background(), 1, testutil.DemoToken)
	}()

	require.Eventually(t, f.orch.Busy, 2*time.Second, 5*time.Millisecond)

	_, err := f.orch.Sync(context.Background(), 1, testutil.DemoToken)
	assert.ErrorIs(t, err, ErrSyncInFlight)

	release()
	wg.Wait()
	assert.False(t, f.orch.Busy())
	assert.Len(t, f.backend.RequestsTo("/sync/1"), 1)
}

func TestSync_CancelledContextSkipsRefresh(t *testing.T) {
	b := testutil.NewBackend(t)
	logger, _ := test.NewNullLogger()
	client, err := api.New(b.URL(), api.WithLogger(logger))
	require.NoError(t, err)

	orch := New(client, stats.New(client, logger), WithSettleDelay(time.Hour), WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	out, err := orch.Sync(ctx, 1, testutil.DemoToken)
	require.NoError(t, err)
	require.True(t, out.Success)
	cancel()

	_, ok := waitRefresh(t, out)
	assert.False(t, ok)
	assert.Equal(t, int64(0), orch.RefreshCount())
}

func TestSync_CustomSettleDelay(t *testing.T) {
	f := newFixture(t)
	WithSettleDelay(50 * time.Millisecond)(f.orch)

	out, _ := f.orch.Sync(context.Background(), 1, testutil.DemoToken)
	waitRefresh(t, out)
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, f.sleeper.Slept())
}

func TestTimerSleeper(t *testing.T) {
	var s TimerSleeper
	require.NoError(t, s.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Sleep(ctx, time.Hour), context.Canceled)
}
