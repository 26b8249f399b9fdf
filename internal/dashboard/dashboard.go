// Package dashboard orchestrates one logical dashboard session.
//
// A Dashboard wires the session token through the store registry, the stats
// aggregator and the sync orchestrator, and folds their results into a State
// that the view renders. Fetches for the selected store run concurrently and
// resolve independently, so a partially loaded State is valid. Results of a
// fetch that has been superseded (by a newer store selection, date range or a
// logout) are dropped on arrival.
//
// Thread-safety: Dashboard is safe for concurrent use. State is guarded by a
// single mutex; network calls never hold it.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/xenodash/internal/account"
	"github.com/roach88/xenodash/internal/api"
	"github.com/roach88/xenodash/internal/model"
	"github.com/roach88/xenodash/internal/registry"
	"github.com/roach88/xenodash/internal/stats"
	"github.com/roach88/xenodash/internal/syncjob"
)

// Fallback identity shown when /me cannot be read.
const (
	FallbackName  = "User"
	FallbackEmail = "user@example.com"
)

var (
	// ErrNotLoggedIn is returned by operations that need a session token.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNoStoreSelected is returned by operations that need a current store.
	ErrNoStoreSelected = errors.New("no store selected")
)

// Default chart ranges.
var (
	DefaultRevenueRange = model.MustDateRange("2025-09-10", "2025-09-14")
	DefaultOrdersRange  = model.MustDateRange("2025-09-10", "2025-09-14")
)

// Backend is the API surface a dashboard needs. *api.Client implements it.
type Backend interface {
	registry.Lister
	stats.Source
	syncjob.Backend
	account.Backend
	Me(ctx context.Context, token string) (model.User, error)
}

// SessionStore holds the token and the remembered store selection.
// *session.Session implements it.
type SessionStore interface {
	account.TokenStore
	Logout(ctx context.Context) error
	SelectedStore() (int, bool)
	RememberStore(ctx context.Context, id int) error
}

// State is a snapshot of everything the view renders. Slices and results are
// replaced wholesale on each fetch and must not be mutated by readers.
type State struct {
	User        model.User
	DisplayName string

	Stores   []model.Store
	Current  *model.Store
	NoStores bool

	Summary *stats.Result[model.Snapshot]
	Revenue *stats.Result[model.Series]
	Orders  *stats.Result[model.Series]

	RevenueRange model.DateRange
	OrdersRange  model.DateRange

	Syncing      bool
	SyncMessage  string
	RefreshCount int64
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithLogger sets the logger used by the dashboard and the components it
// builds.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Dashboard) { d.log = l }
}

// WithRanges overrides the initial revenue and orders ranges.
func WithRanges(revenue, orders model.DateRange) Option {
	return func(d *Dashboard) {
		d.defaultRevenue = revenue
		d.defaultOrders = orders
	}
}

// WithSyncOptions passes options through to the sync orchestrator.
func WithSyncOptions(opts ...syncjob.Option) Option {
	return func(d *Dashboard) { d.syncOpts = append(d.syncOpts, opts...) }
}

// Dashboard is one logical dashboard session.
type Dashboard struct {
	backend  Backend
	session  SessionStore
	log      logrus.FieldLogger
	syncOpts []syncjob.Option

	registry *registry.Registry
	agg      *stats.Aggregator
	orch     *syncjob.Orchestrator
	accounts *account.Service
	tracker  *stats.Tracker

	defaultRevenue model.DateRange
	defaultOrders  model.DateRange

	mu    sync.Mutex
	state State
}

// New creates a dashboard over backend and sess. Nothing is fetched until
// Load.
func New(backend Backend, sess SessionStore, opts ...Option) *Dashboard {
	d := &Dashboard{
		backend:        backend,
		session:        sess,
		log:            logrus.StandardLogger(),
		defaultRevenue: DefaultRevenueRange,
		defaultOrders:  DefaultOrdersRange,
		tracker:        stats.NewTracker(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.registry = registry.New(backend)
	d.agg = stats.New(backend, d.log)
	d.orch = syncjob.New(backend, d.agg, append([]syncjob.Option{syncjob.WithLogger(d.log)}, d.syncOpts...)...)
	d.accounts = account.New(backend, sess)
	d.state = d.emptyState()
	return d
}

func (d *Dashboard) emptyState() State {
	return State{RevenueRange: d.defaultRevenue, OrdersRange: d.defaultOrders}
}

// State returns a copy of the current state.
func (d *Dashboard) State() State {
	d.mu.Lock()
	s := d.state
	d.mu.Unlock()

	s.Stores = append([]model.Store(nil), s.Stores...)
	if s.Current != nil {
		cur := *s.Current
		s.Current = &cur
	}
	s.Syncing = d.orch.Busy()
	s.RefreshCount = d.orch.RefreshCount()
	return s
}

func (d *Dashboard) token() (string, error) {
	token, ok := d.session.CurrentToken()
	if !ok {
		return "", ErrNotLoggedIn
	}
	return token, nil
}

// Load reads the account identity and store list, then selects the
// remembered store (or the first one) and fetches its analytics.
//
// A failed /me read falls back to a generic identity. An empty store list is
// not an error: State.NoStores is set and nothing else is fetched.
func (d *Dashboard) Load(ctx context.Context) error {
	return d.LoadStore(ctx, 0)
}

// LoadStore is Load with the store chosen by id. An id of 0 picks the
// remembered store or the first one.
func (d *Dashboard) LoadStore(ctx context.Context, id int) error {
	token, err := d.token()
	if err != nil {
		return err
	}

	user, err := d.backend.Me(ctx, token)
	d.mu.Lock()
	if err != nil {
		d.log.WithError(err).Warn("failed to fetch user info")
		d.state.User = model.User{Email: FallbackEmail}
		d.state.DisplayName = FallbackName
	} else {
		d.state.User = user
		d.state.DisplayName = DisplayName(user.Email)
	}
	d.mu.Unlock()

	store, changed, err := d.pick(ctx, token, id)
	if errors.Is(err, registry.ErrNoStores) {
		return nil
	}
	if err != nil {
		return err
	}
	d.activate(ctx, token, store, changed)
	return nil
}

// Resolve reads the store list and makes a store current without fetching
// analytics or remembering the choice. An id of 0 picks the remembered store
// or the first one. Commands that need a single metric start here.
func (d *Dashboard) Resolve(ctx context.Context, id int) (model.Store, error) {
	token, err := d.token()
	if err != nil {
		return model.Store{}, err
	}
	store, _, err := d.pick(ctx, token, id)
	if err != nil {
		return model.Store{}, err
	}
	d.setCurrent(store)
	return store, nil
}

// pick fetches the store list and selects a store in the registry.
func (d *Dashboard) pick(ctx context.Context, token string, id int) (model.Store, bool, error) {
	stores, err := d.registry.List(ctx, token)
	switch {
	case errors.Is(err, registry.ErrNoStores):
		d.mu.Lock()
		d.state.Stores = nil
		d.state.Current = nil
		d.state.NoStores = true
		d.mu.Unlock()
		return model.Store{}, false, err
	case err != nil:
		return model.Store{}, false, err
	}

	d.mu.Lock()
	d.state.Stores = stores
	d.state.NoStores = false
	d.mu.Unlock()

	if id != 0 {
		return d.registry.SelectID(id)
	}
	target := stores[0]
	if remembered, ok := d.session.SelectedStore(); ok {
		if s, found := d.registry.Find(remembered); found {
			target = s
		}
	}
	return target, d.registry.Select(target), nil
}

// SelectStore makes the store with id current and fetches its analytics.
// Reselecting the current store does nothing.
func (d *Dashboard) SelectStore(ctx context.Context, id int) error {
	token, err := d.token()
	if err != nil {
		return err
	}
	store, changed, err := d.registry.SelectID(id)
	if err != nil {
		return err
	}
	d.activate(ctx, token, store, changed)
	return nil
}

// activate publishes a registry selection. A changed selection is remembered
// and its analytics fetched.
func (d *Dashboard) activate(ctx context.Context, token string, store model.Store, changed bool) {
	d.setCurrent(store)
	if !changed {
		return
	}
	if err := d.session.RememberStore(ctx, store.ID); err != nil {
		d.log.WithError(err).Warn("failed to remember store selection")
	}
	d.log.WithField("store_id", store.ID).Debug("store selected")
	d.fetchAll(ctx, token, store.ID)
}

func (d *Dashboard) setCurrent(store model.Store) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := store
	d.state.Current = &s
}

// current returns the token and selected store, or an error naming what is
// missing.
func (d *Dashboard) current() (string, model.Store, error) {
	token, err := d.token()
	if err != nil {
		return "", model.Store{}, err
	}
	store, ok := d.registry.Current()
	if !ok {
		return "", model.Store{}, ErrNoStoreSelected
	}
	return token, store, nil
}

// SetRevenueRange changes the revenue chart range and re-fetches revenue.
// With no store selected only the range is recorded.
func (d *Dashboard) SetRevenueRange(ctx context.Context, r model.DateRange) error {
	d.mu.Lock()
	d.state.RevenueRange = r
	d.mu.Unlock()

	token, store, err := d.current()
	if errors.Is(err, ErrNoStoreSelected) {
		return nil
	}
	if err != nil {
		return err
	}
	d.fetchRevenue(ctx, token, store.ID, r)
	return nil
}

// SetOrdersRange changes the orders chart range and re-fetches orders.
// With no store selected only the range is recorded.
func (d *Dashboard) SetOrdersRange(ctx context.Context, r model.DateRange) error {
	d.mu.Lock()
	d.state.OrdersRange = r
	d.mu.Unlock()

	token, store, err := d.current()
	if errors.Is(err, ErrNoStoreSelected) {
		return nil
	}
	if err != nil {
		return err
	}
	d.fetchOrders(ctx, token, store.ID, r)
	return nil
}

// Refresh re-fetches the summary and both series for the current store.
func (d *Dashboard) Refresh(ctx context.Context) error {
	token, store, err := d.current()
	if err != nil {
		return err
	}
	d.fetchAll(ctx, token, store.ID)
	return nil
}

// RefreshSummary re-fetches only the summary for the current store.
func (d *Dashboard) RefreshSummary(ctx context.Context) error {
	token, store, err := d.current()
	if err != nil {
		return err
	}
	d.fetchSummary(ctx, token, store.ID)
	return nil
}

// Sync triggers a backend sync for the current store and waits for the
// follow-up refresh of both series. The refresh targets whichever store is
// current once the settle delay ends, which may differ from the synced one.
//
// A failed sync is reported through the Outcome and State.SyncMessage, not
// the error; the error is syncjob.ErrSyncInFlight, a missing session or
// store, or the context ending while waiting for the refresh.
func (d *Dashboard) Sync(ctx context.Context) (syncjob.Outcome, error) {
	token, store, err := d.current()
	if err != nil {
		return syncjob.Outcome{}, err
	}

	out, err := d.orch.Sync(ctx, store.ID, token)
	if err != nil {
		return out, err
	}

	d.mu.Lock()
	d.state.SyncMessage = out.Message
	if out.Success && out.Summary != nil {
		// Begun only now so a failed sync leaves in-flight summaries alone.
		d.applySummary(d.tracker.Begin(stats.MetricSummary), store.ID, *out.Summary)
	}
	d.mu.Unlock()

	select {
	case n, ok := <-out.Refreshed:
		if !ok {
			return out, nil
		}
		d.log.WithField("refresh", n).Debug("refreshing series after sync")
	case <-ctx.Done():
		return out, ctx.Err()
	}

	token, store, err = d.current()
	if err != nil {
		// Logged out or deselected during the settle delay.
		d.log.WithError(err).Debug("skipping post-sync refresh")
		return out, nil
	}
	d.mu.Lock()
	revenue, orders := d.state.RevenueRange, d.state.OrdersRange
	d.mu.Unlock()

	var wg conc.WaitGroup
	wg.Go(func() { d.fetchRevenue(ctx, token, store.ID, revenue) })
	wg.Go(func() { d.fetchOrders(ctx, token, store.ID, orders) })
	wg.Wait()
	return out, nil
}

// AddTenant registers a new store and adds it to the list. When no store is
// selected yet, the new one is selected.
func (d *Dashboard) AddTenant(ctx context.Context, in api.TenantInput) (model.Store, error) {
	store, err := d.accounts.CreateTenant(ctx, in)
	if err != nil {
		return model.Store{}, err
	}
	d.registry.Add(store)

	d.mu.Lock()
	d.state.Stores = d.registry.Stores()
	d.state.NoStores = false
	d.mu.Unlock()

	if _, selected := d.registry.Current(); !selected {
		token, err := d.token()
		if err != nil {
			return store, err
		}
		d.activate(ctx, token, store, d.registry.Select(store))
	}
	return store, nil
}

// Logout ends the session and resets every entity. In-flight fetches are
// superseded and their results dropped.
func (d *Dashboard) Logout(ctx context.Context) error {
	d.mu.Lock()
	d.tracker.Invalidate(stats.MetricSummary, stats.MetricRevenue, stats.MetricOrders)
	d.state = d.emptyState()
	d.mu.Unlock()

	d.registry.Reset()
	if err := d.session.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (d *Dashboard) fetchAll(ctx context.Context, token string, storeID int) {
	d.mu.Lock()
	revenue, orders := d.state.RevenueRange, d.state.OrdersRange
	d.mu.Unlock()

	var wg conc.WaitGroup
	wg.Go(func() { d.fetchSummary(ctx, token, storeID) })
	wg.Go(func() { d.fetchRevenue(ctx, token, storeID, revenue) })
	wg.Go(func() { d.fetchOrders(ctx, token, storeID, orders) })
	wg.Wait()
}

func (d *Dashboard) fetchSummary(ctx context.Context, token string, storeID int) {
	gen := d.tracker.Begin(stats.MetricSummary)
	res := d.agg.FetchSummary(ctx, storeID, token)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.applySummary(gen, storeID, res)
}

// applySummary must be called with d.mu held.
func (d *Dashboard) applySummary(gen int64, storeID int, res stats.Result[model.Snapshot]) {
	if d.superseded(stats.MetricSummary, gen, storeID) {
		return
	}
	d.state.Summary = &res
}

func (d *Dashboard) fetchRevenue(ctx context.Context, token string, storeID int, r model.DateRange) {
	gen := d.tracker.Begin(stats.MetricRevenue)
	res := d.agg.FetchRevenue(ctx, storeID, token, r)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.superseded(stats.MetricRevenue, gen, storeID) || !r.Equal(d.state.RevenueRange) {
		return
	}
	d.state.Revenue = &res
}

func (d *Dashboard) fetchOrders(ctx context.Context, token string, storeID int, r model.DateRange) {
	gen := d.tracker.Begin(stats.MetricOrders)
	res := d.agg.FetchOrders(ctx, storeID, token, r)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.superseded(stats.MetricOrders, gen, storeID) || !r.Equal(d.state.OrdersRange) {
		return
	}
	d.state.Orders = &res
}

// superseded reports whether a result for storeID under generation gen is
// stale: a newer fetch of the metric has begun, or the store is no longer
// current. Must be called with d.mu held.
func (d *Dashboard) superseded(m stats.Metric, gen int64, storeID int) bool {
	stale := !d.tracker.IsLatest(m, gen) || d.state.Current == nil || d.state.Current.ID != storeID
	if stale {
		d.log.WithFields(logrus.Fields{
			"metric":     string(m),
			"generation": gen,
			"store_id":   storeID,
		}).Debug("dropping superseded result")
	}
	return stale
}

// DisplayName derives a name from an email address: the local part split on
// ".", the first letter of each piece upper-cased, joined with spaces.
func DisplayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	upper := cases.Upper(language.Und)
	parts := strings.Split(local, ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		_, size := utf8.DecodeRuneInString(p)
		parts[i] = upper.String(p[:size]) + p[size:]
	}
	return strings.Join(parts, " ")
}
