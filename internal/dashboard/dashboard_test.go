package dashboard

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xenodash/internal/api"
	"github.com/roach88/xenodash/internal/model"
	"github.com/roach88/xenodash/internal/registry"
	"github.com/roach88/xenodash/internal/session"
	"github.com/roach88/xenodash/internal/stats"
	"github.com/roach88/xenodash/internal/syncjob"
	"github.com/roach88/xenodash/internal/testutil"
)

type fixture struct {
	dash    *Dashboard
	backend *testutil.Backend
	session *session.Session
	sleeper *testutil.RecordingSleeper
	path    string
}

func newFixture(t *testing.T, loggedIn bool, opts ...Option) fixture {
	t.Helper()
	b := testutil.NewBackend(t)
	logger, _ := test.NewNullLogger()
	client, err := api.New(b.URL(), api.WithLogger(logger))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state.db")
	sess, err := session.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	if loggedIn {
		require.NoError(t, sess.Login(context.Background(), testutil.DemoToken))
	}

	sleeper := testutil.NewRecordingSleeper()
	opts = append([]Option{WithLogger(logger), WithSyncOptions(syncjob.WithSleeper(sleeper))}, opts...)
	d := New(client, sess, opts...)
	return fixture{dash: d, backend: b, session: sess, sleeper: sleeper, path: path}
}

func TestLoad_SelectsFirstStoreAndFetchesEverything(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.dash.Load(context.Background()))
	st := f.dash.State()

	assert.Equal(t, testutil.DemoEmail, st.User.Email)
	assert.Equal(t, "Russell Winfield", st.DisplayName)
	assert.Len(t, st.Stores, 2)
	require.NotNil(t, st.Current)
	assert.Equal(t, 1, st.Current.ID)
	assert.False(t, st.NoStores)

	require.NotNil(t, st.Summary)
	assert.Equal(t, stats.Live, st.Summary.Kind)
	assert.Equal(t, "2500.5", st.Summary.Value.TotalRevenue.String())

	require.NotNil(t, st.Revenue)
	assert.Equal(t, stats.Live, st.Revenue.Kind)
	assert.Equal(t, []float64{100, 200, 300, 400, 500}, st.Revenue.Value.Data)
	require.NotNil(t, st.Orders)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, st.Orders.Value.Data)
	assert.Equal(t, []string{"2025-09-10", "2025-09-11", "2025-09-12", "2025-09-13", "2025-09-14"}, st.Orders.Value.Labels)

	// Every authenticated call carries the session token.
	for _, r := range f.backend.Requests() {
		assert.Equal(t, "Bearer abc123", r.Authorization, r.Path)
	}
	assert.Len(t, f.backend.RequestsTo("/stores"), 1)
	assert.Len(t, f.backend.RequestsTo("/stats/1"), 1)
}

func TestLoad_RequiresSession(t *testing.T) {
	f := newFixture(t, false)

	assert.ErrorIs(t, f.dash.Load(context.Background()), ErrNotLoggedIn)
	assert.Empty(t, f.backend.Requests())
}

func TestLoad_MeFailureFallsBack(t *testing.T) {
	f := newFixture(t, true)
	f.backend.FailWith("/me", http.StatusInternalServerError, "boom")

	require.NoError(t, f.dash.Load(context.Background()))
	st := f.dash.State()

	assert.Equal(t, FallbackName, st.DisplayName)
	assert.Equal(t, FallbackEmail, st.User.Email)
	assert.NotNil(t, st.Summary, "the rest of the load continues")
}

func TestLoad_NoStores(t *testing.T) {
	f := newFixture(t, true)
	f.backend.SetStores(nil)

	require.NoError(t, f.dash.Load(context.Background()))
	st := f.dash.State()

	assert.True(t, st.NoStores)
	assert.Nil(t, st.Current)
	assert.Nil(t, st.Summary)
	assert.Empty(t, f.backend.RequestsTo("/stats/1"))
}

func TestLoad_StoreListFailureIsAnError(t *testing.T) {
	f := newFixture(t, true)
	f.backend.Drop("/stores")

	err := f.dash.Load(context.Background())
	assert.True(t, api.IsNetwork(err))
}

func TestLoad_RestoresRememberedStore(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))
	require.NoError(t, f.dash.SelectStore(context.Background(), 2))
	require.NoError(t, f.session.Close())

	reopened, err := session.Open(f.path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	logger, _ := test.NewNullLogger()
	client, err := api.New(f.backend.URL(), api.WithLogger(logger))
	require.NoError(t, err)
	d := New(client, reopened, WithLogger(logger))

	require.NoError(t, d.Load(context.Background()))
	st := d.State()
	require.NotNil(t, st.Current)
	assert.Equal(t, 2, st.Current.ID)
}

func TestSelectStore_FetchesFromStorePath(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))

	require.NoError(t, f.dash.SelectStore(context.Background(), 2))

	st := f.dash.State()
	assert.Equal(t, 2, st.Current.ID)
	assert.Equal(t, "99.99", st.Summary.Value.TotalRevenue.String())
	assert.Len(t, f.backend.RequestsTo("/stats/2"), 1)
	assert.Len(t, f.backend.RequestsTo("/stats/2/revenue"), 1)
	assert.Len(t, f.backend.RequestsTo("/stats/2/orders"), 1)
}

func TestSelectStore_SameStoreIsNoop(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))
	before := len(f.backend.Requests())

	require.NoError(t, f.dash.SelectStore(context.Background(), 1))

	assert.Len(t, f.backend.Requests(), before)
}

func TestSelectStore_Unknown(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))

	assert.ErrorIs(t, f.dash.SelectStore(context.Background(), 99), registry.ErrUnknownStore)
}

func TestSetRevenueRange_RefetchesOnlyRevenue(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))

	r := model.MustDateRange("2025-09-01", "2025-09-03")
	require.NoError(t, f.dash.SetRevenueRange(context.Background(), r))

	st := f.dash.State()
	assert.Equal(t, r, st.RevenueRange)
	assert.Equal(t, []string{"2025-09-01", "2025-09-02", "2025-09-03"}, st.Revenue.Value.Labels)
	assert.Equal(t, 5, st.Orders.Value.Len(), "orders keep their own range")

	reqs := f.backend.RequestsTo("/stats/1/revenue")
	require.Len(t, reqs, 2)
	assert.Equal(t, "endDate=2025-09-03&startDate=2025-09-01", reqs[1].Query)
	assert.Len(t, f.backend.RequestsTo("/stats/1/orders"), 1)
}

func TestSetOrdersRange_WithoutStoreOnlyRecords(t *testing.T) {
	f := newFixture(t, true)

	r := model.MustDateRange("2025-09-01", "2025-09-02")
	require.NoError(t, f.dash.SetOrdersRange(context.Background(), r))

	assert.Equal(t, r, f.dash.State().OrdersRange)
	assert.Empty(t, f.backend.Requests())
}

func TestRefresh_MasksFailuresPerMetric(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))

	f.backend.Drop("/stats/1/revenue")
	f.backend.FailWith("/stats/1", http.StatusInternalServerError, "db down")
	require.NoError(t, f.dash.Refresh(context.Background()))

	st := f.dash.State()
	assert.Equal(t, stats.BackendError, st.Summary.Kind)
	assert.Equal(t, stats.PlaceholderSnapshot(), st.Summary.Value)
	assert.Equal(t, stats.Degraded, st.Revenue.Kind)
	assert.Equal(t, stats.PlaceholderRevenue(st.RevenueRange), st.Revenue.Value)
	assert.Equal(t, stats.Live, st.Orders.Kind)
}

func TestRefresh_RequiresStore(t *testing.T) {
	f := newFixture(t, true)
	assert.ErrorIs(t, f.dash.Refresh(context.Background()), ErrNoStoreSelected)
}

func TestRefresh_StaleResponseIsDropped(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))

	// Both range changes are in flight before either response arrives, so
	// the older one may land last and must not overwrite the newer.
	release := f.backend.Gate("/stats/1/revenue")
	older := model.MustDateRange("2025-09-01", "2025-09-02")
	newer := model.MustDateRange("2025-09-20", "2025-09-22")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.dash.SetRevenueRange(context.Background(), older)
	}()
	require.Eventually(t, func() bool {
		return len(f.backend.RequestsTo("/stats/1/revenue")) == 2
	}, 2*time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.dash.SetRevenueRange(context.Background(), newer)
	}()
	require.Eventually(t, func() bool {
		return len(f.backend.RequestsTo("/stats/1/revenue")) == 3
	}, 2*time.Second, 5*time.Millisecond)

	release()
	wg.Wait()

	st := f.dash.State()
	assert.Equal(t, newer, st.RevenueRange)
	assert.Equal(t, newer.Days(), st.Revenue.Value.Labels)
}

func TestSync_UpdatesMessageAndRefreshesSeries(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))
	f.backend.SetSyncMessage(1, "Synced 3 orders")

	out, err := f.dash.Sync(context.Background())
	require.NoError(t, err)

	assert.True(t, out.Success)
	st := f.dash.State()
	assert.Equal(t, "✅ Synced 3 orders", st.SyncMessage)
	assert.Equal(t, int64(1), st.RefreshCount)
	assert.False(t, st.Syncing)
	assert.Len(t, f.backend.RequestsTo("/stats/1/revenue"), 2)
	assert.Len(t, f.backend.RequestsTo("/stats/1/orders"), 2)
	assert.Len(t, f.backend.RequestsTo("/stats/1"), 2)
	assert.Equal(t, []time.Duration{syncjob.DefaultSettleDelay}, f.sleeper.Slept())
}

func TestSync_FailureKeepsDataAndSkipsRefresh(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))
	f.backend.FailWith("/sync/1", http.StatusBadGateway, "Shopify API rate limited")

	out, err := f.dash.Sync(context.Background())
	require.NoError(t, err)

	assert.False(t, out.Success)
	st := f.dash.State()
	assert.Equal(t, "❌ Shopify API rate limited", st.SyncMessage)
	assert.Equal(t, int64(0), st.RefreshCount)
	assert.Equal(t, stats.Live, st.Summary.Kind)
	assert.Len(t, f.backend.RequestsTo("/stats/1/revenue"), 1)
}

// heldSleeper blocks the settle delay until released.
type heldSleeper struct {
	entered chan struct{}
	release chan struct{}
}

func newHeldSleeper() *heldSleeper {
	return &heldSleeper{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *heldSleeper) Sleep(ctx context.Context, _ time.Duration) error {
	close(s.entered)
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSync_RefreshFollowsStoreSelectedDuringSettle(t *testing.T) {
	sleeper := newHeldSleeper()
	f := newFixture(t, true, WithSyncOptions(syncjob.WithSleeper(sleeper)))
	ctx := context.Background()
	require.NoError(t, f.dash.Load(ctx))

	done := make(chan error, 1)
	go func() {
		_, err := f.dash.Sync(ctx)
		done <- err
	}()
	select {
	case <-sleeper.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sync never reached the settle delay")
	}

	require.NoError(t, f.dash.SelectStore(ctx, 2))
	close(sleeper.release)
	require.NoError(t, <-done)

	st := f.dash.State()
	require.NotNil(t, st.Current)
	assert.Equal(t, 2, st.Current.ID)
	assert.Len(t, f.backend.RequestsTo("/stats/1/revenue"), 1, "deselected store is not refreshed")
	assert.Len(t, f.backend.RequestsTo("/stats/1/orders"), 1)
	assert.Len(t, f.backend.RequestsTo("/stats/2/revenue"), 2)
	assert.Len(t, f.backend.RequestsTo("/stats/2/orders"), 2)
	assert.Equal(t, 1, st.Summary.Value.TotalOrders)
	assert.Equal(t, int64(1), st.RefreshCount)
}

func TestSync_LogoutDuringSettleSkipsRefresh(t *testing.T) {
	sleeper := newHeldSleeper()
	f := newFixture(t, true, WithSyncOptions(syncjob.WithSleeper(sleeper)))
	ctx := context.Background()
	require.NoError(t, f.dash.Load(ctx))

	done := make(chan error, 1)
	go func() {
		_, err := f.dash.Sync(ctx)
		done <- err
	}()
	select {
	case <-sleeper.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sync never reached the settle delay")
	}

	require.NoError(t, f.dash.Logout(ctx))
	close(sleeper.release)
	require.NoError(t, <-done)

	st := f.dash.State()
	assert.Nil(t, st.Revenue)
	assert.Len(t, f.backend.RequestsTo("/stats/1/revenue"), 1)
}

func TestSync_FailureLeavesInFlightSummaryAlone(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.dash.Load(ctx))

	release := f.backend.Gate("/stats/2")
	f.backend.FailWith("/sync/2", http.StatusBadGateway, "Shopify API unavailable")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.dash.SelectStore(ctx, 2)
	}()
	require.Eventually(t, func() bool {
		return len(f.backend.RequestsTo("/stats/2")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	out, err := f.dash.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, out.Success)

	release()
	wg.Wait()

	st := f.dash.State()
	require.NotNil(t, st.Current)
	assert.Equal(t, 2, st.Current.ID)
	require.NotNil(t, st.Summary)
	assert.Equal(t, stats.Live, st.Summary.Kind)
	assert.Equal(t, 1, st.Summary.Value.TotalOrders, "summary belongs to the selected store")
	assert.Equal(t, "❌ Shopify API unavailable", st.SyncMessage)
}

func TestFetch_DropsResultForDeselectedStore(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.dash.Load(ctx))
	require.NoError(t, f.dash.SelectStore(ctx, 2))
	before := f.dash.State()

	// Newest generation, but store 1 is no longer current.
	f.dash.fetchRevenue(ctx, testutil.DemoToken, 1, before.RevenueRange)
	f.dash.fetchSummary(ctx, testutil.DemoToken, 1)

	st := f.dash.State()
	assert.Equal(t, before.Revenue.Value, st.Revenue.Value)
	assert.Equal(t, 1, st.Summary.Value.TotalOrders)
}

func TestFetch_DropsResultForReplacedRange(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.dash.Load(ctx))
	before := f.dash.State()

	f.dash.fetchOrders(ctx, testutil.DemoToken, 1, model.MustDateRange("2025-09-01", "2025-09-02"))

	assert.Equal(t, before.Orders.Value, f.dash.State().Orders.Value)
}

func TestResolve_SelectsWithoutFetching(t *testing.T) {
	f := newFixture(t, true)

	store, err := f.dash.Resolve(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, "Fashion Store", store.Name)
	st := f.dash.State()
	require.NotNil(t, st.Current)
	assert.Equal(t, 2, st.Current.ID)
	assert.Len(t, st.Stores, 2)
	assert.Nil(t, st.Summary)
	assert.Empty(t, f.backend.RequestsTo("/stats/2"))
	_, remembered := f.session.SelectedStore()
	assert.False(t, remembered, "resolving does not remember the store")
}

func TestResolve_DefaultsToRememberedStore(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.session.RememberStore(context.Background(), 2))

	store, err := f.dash.Resolve(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, store.ID)
}

func TestResolve_Errors(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.dash.Resolve(context.Background(), 9)
	assert.ErrorIs(t, err, registry.ErrUnknownStore)

	f.backend.SetStores(nil)
	_, err = f.dash.Resolve(context.Background(), 0)
	assert.ErrorIs(t, err, registry.ErrNoStores)
	assert.True(t, f.dash.State().NoStores)

	out := newFixture(t, false)
	_, err = out.dash.Resolve(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestLoadStore_FetchesOnlyChosenStore(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.dash.LoadStore(context.Background(), 2))

	assert.Equal(t, 2, f.dash.State().Current.ID)
	assert.Empty(t, f.backend.RequestsTo("/stats/1"))
	assert.Len(t, f.backend.RequestsTo("/stats/2"), 1)
	id, ok := f.session.SelectedStore()
	require.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestRefreshSummary_FetchesOnlySummary(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.dash.Resolve(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, f.dash.RefreshSummary(context.Background()))

	st := f.dash.State()
	require.NotNil(t, st.Summary)
	assert.Equal(t, 12, st.Summary.Value.TotalOrders)
	assert.Nil(t, st.Revenue)
	assert.Empty(t, f.backend.RequestsTo("/stats/1/revenue"))
}

func TestSync_SuccessMessageSurvivesStatsFailure(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))
	f.backend.Drop("/stats/1")

	_, err := f.dash.Sync(context.Background())
	require.NoError(t, err)

	st := f.dash.State()
	assert.Equal(t, "✅ Synced store 1", st.SyncMessage)
	assert.Equal(t, stats.Degraded, st.Summary.Kind)
}

func TestAddTenant_AppendsStore(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))

	store, err := f.dash.AddTenant(context.Background(), api.TenantInput{
		Name: "Electronics Store", StoreURL: "https://electronics-store.myshopify.com", APIToken: "shpat_1",
	})
	require.NoError(t, err)

	st := f.dash.State()
	assert.Len(t, st.Stores, 3)
	assert.Equal(t, store, st.Stores[2])
	assert.Equal(t, 1, st.Current.ID, "existing selection is kept")
}

func TestAddTenant_SelectsFirstStore(t *testing.T) {
	f := newFixture(t, true)
	f.backend.SetStores(nil)
	require.NoError(t, f.dash.Load(context.Background()))

	store, err := f.dash.AddTenant(context.Background(), api.TenantInput{
		Name: "Electronics Store", StoreURL: "https://electronics-store.myshopify.com", APIToken: "shpat_1",
	})
	require.NoError(t, err)

	st := f.dash.State()
	assert.False(t, st.NoStores)
	require.NotNil(t, st.Current)
	assert.Equal(t, store.ID, st.Current.ID)
	assert.NotNil(t, st.Summary)
}

func TestLogout_ResetsEverything(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))
	require.NoError(t, f.dash.SetOrdersRange(context.Background(), model.MustDateRange("2025-09-01", "2025-09-02")))

	require.NoError(t, f.dash.Logout(context.Background()))

	st := f.dash.State()
	assert.Empty(t, st.Stores)
	assert.Nil(t, st.Current)
	assert.Nil(t, st.Summary)
	assert.Nil(t, st.Revenue)
	assert.Nil(t, st.Orders)
	assert.Empty(t, st.DisplayName)
	assert.Equal(t, DefaultOrdersRange, st.OrdersRange)
	assert.False(t, f.session.Active())

	require.NoError(t, f.session.Close())
	reopened, err := session.Open(f.path)
	require.NoError(t, err)
	defer reopened.Close()
	_, ok := reopened.CurrentToken()
	assert.False(t, ok, "logout is durable")
}

func TestLogout_DropsInFlightResults(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.dash.Load(context.Background()))

	release := f.backend.Gate("/stats/1")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.dash.Refresh(context.Background())
	}()
	require.Eventually(t, func() bool {
		return len(f.backend.RequestsTo("/stats/1")) == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.dash.Logout(context.Background()))
	release()
	wg.Wait()

	st := f.dash.State()
	assert.Nil(t, st.Summary)
	assert.Nil(t, st.Revenue)
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"russell.winfield@example.com": "Russell Winfield",
		"demo123customer@gmail.com":    "Demo123customer",
		"mary-jane.watson@example.com": "Mary-jane Watson",
		"a..b@example.com":             "A  B",
		"noatsign":                     "Noatsign",
	}
	for email, want := range tests {
		assert.Equal(t, want, DisplayName(email), email)
	}
}
