package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/xenodash/internal/dashboard"
	"github.com/roach88/xenodash/internal/model"
	"github.com/roach88/xenodash/internal/stats"
	"github.com/roach88/xenodash/internal/view"
)

// StoreOptions holds the --store flag shared by analytics commands.
type StoreOptions struct {
	*RootOptions
	StoreID int
}

func addStoreFlag(cmd *cobra.Command, opts *StoreOptions) {
	cmd.Flags().IntVar(&opts.StoreID, "store", 0, "store id (default: the selected store)")
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show summary KPIs and top customers",
		Long: `Show total revenue, orders and customers, and the top customers, for
a store.

If the backend cannot be reached, placeholder figures are shown and marked.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}
	addStoreFlag(cmd, opts)
	return cmd
}

func runStats(opts *StoreOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	d, store, err := a.openStore(ctx, opts.StoreID)
	if err != nil {
		return err
	}
	if err := d.RefreshSummary(ctx); err != nil {
		return failure(err)
	}

	res := d.State().Summary
	return a.out.Render(view.NewSummaryView(res), func(w io.Writer) {
		fmt.Fprintf(w, "%s (#%d)\n", store.Name, store.ID)
		view.WriteSummary(w, res)
	})
}

// SeriesOptions holds flags for revenue and orders.
type SeriesOptions struct {
	StoreOptions
	From string
	To   string
}

type seriesKind struct {
	use     string
	title   string
	unit    view.Unit
	metric  stats.Metric
	set     func(d *dashboard.Dashboard, ctx context.Context, r model.DateRange) error
	result  func(st dashboard.State) *stats.Result[model.Series]
	configR func(a *app) (model.DateRange, error)
}

var (
	revenueSeries = seriesKind{
		use:    "revenue",
		title:  view.RevenueTitle,
		unit:   view.Dollars,
		metric: stats.MetricRevenue,
		set:    (*dashboard.Dashboard).SetRevenueRange,
		result: func(st dashboard.State) *stats.Result[model.Series] { return st.Revenue },
		configR: func(a *app) (model.DateRange, error) {
			return a.cfg.RevenueRange()
		},
	}
	ordersSeries = seriesKind{
		use:    "orders",
		title:  view.OrdersTitle,
		unit:   view.Count,
		metric: stats.MetricOrders,
		set:    (*dashboard.Dashboard).SetOrdersRange,
		result: func(st dashboard.State) *stats.Result[model.Series] { return st.Orders },
		configR: func(a *app) (model.DateRange, error) {
			return a.cfg.OrdersRange()
		},
	}
)

// NewRevenueCommand creates the revenue command.
func NewRevenueCommand(rootOpts *RootOptions) *cobra.Command {
	return newSeriesCommand(rootOpts, revenueSeries, "Show daily revenue for a date range")
}

// NewOrdersCommand creates the orders command.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	return newSeriesCommand(rootOpts, ordersSeries, "Show daily order counts for a date range")
}

func newSeriesCommand(rootOpts *RootOptions, kind seriesKind, short string) *cobra.Command {
	opts := &SeriesOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   kind.use,
		Short: short,
		Long: short + `.

Dates are inclusive and formatted YYYY-MM-DD. Unset bounds come from the
configured range. If the backend cannot be reached, a placeholder series
is shown and marked.

Example:
  xenodash ` + kind.use + ` --from 2025-09-10 --to 2025-09-14`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeries(opts, kind, cmd)
		},
	}
	addStoreFlag(cmd, &opts.StoreOptions)
	cmd.Flags().StringVar(&opts.From, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "last day (YYYY-MM-DD)")
	return cmd
}

func runSeries(opts *SeriesOptions, kind seriesKind, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := kind.configR(a)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configured range", err)
	}
	from, to := r.FromString(), r.ToString()
	if opts.From != "" {
		from = opts.From
	}
	if opts.To != "" {
		to = opts.To
	}
	if r, err = parseRange(from, to); err != nil {
		return err
	}

	ctx := commandContext(cmd)
	d, _, err := a.openStore(ctx, opts.StoreID)
	if err != nil {
		return err
	}

	a.log.WithField("metric", string(kind.metric)).WithField("range", r.String()).Debug("fetching series")
	if err := kind.set(d, ctx, r); err != nil {
		return failure(err)
	}
	res := kind.result(d.State())
	return a.out.Render(view.NewSeriesView(r, res), func(w io.Writer) {
		view.WriteSeries(w, kind.title, r, res, kind.unit)
	})
}

// SyncResult is the sync payload.
type SyncResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	StoreID int               `json:"store_id"`
	Summary *view.SummaryView `json:"summary,omitempty"`
	Revenue *view.SeriesView  `json:"revenue,omitempty"`
	Orders  *view.SeriesView  `json:"orders,omitempty"`
	Refresh int64             `json:"refresh,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull fresh data from Shopify into the backend",
		Long: `Ask the backend to sync a store's data from Shopify.

On success the summary is re-fetched right away. After the configured
settle delay both charts are re-fetched and the command reports. A failed
sync exits with status 1.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}
	addStoreFlag(cmd, opts)
	return cmd
}

func runSync(opts *StoreOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	d, store, err := a.openStore(ctx, opts.StoreID)
	if err != nil {
		return err
	}

	out, err := d.Sync(ctx)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return WrapExitError(ExitFailure, "interrupted", err)
	case err != nil:
		return failure(err)
	case !out.Success:
		return NewExitError(ExitFailure, out.Message)
	}

	st := d.State()
	res := SyncResult{Success: out.Success, Message: out.Message, StoreID: store.ID, Refresh: st.RefreshCount}
	if st.Summary != nil {
		res.Summary = view.NewSummaryView(st.Summary)
	}
	if st.Revenue != nil {
		res.Revenue = view.NewSeriesView(st.RevenueRange, st.Revenue)
	}
	if st.Orders != nil {
		res.Orders = view.NewSeriesView(st.OrdersRange, st.Orders)
	}
	return a.out.Render(res, func(w io.Writer) {
		fmt.Fprintln(w, out.Message)
		if st.Summary != nil {
			fmt.Fprintln(w)
			view.WriteSummary(w, st.Summary)
		}
		if st.Revenue != nil {
			fmt.Fprintln(w)
			view.WriteSeries(w, view.RevenueTitle, st.RevenueRange, st.Revenue, view.Dollars)
		}
		if st.Orders != nil {
			fmt.Fprintln(w)
			view.WriteSeries(w, view.OrdersTitle, st.OrdersRange, st.Orders, view.Count)
		}
	})
}
