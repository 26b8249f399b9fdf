package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/roach88/xenodash/internal/dashboard"
	"github.com/roach88/xenodash/internal/view"
)

// DashboardOptions holds flags for dashboard and watch.
type DashboardOptions struct {
	StoreOptions
	RevenueFrom string
	RevenueTo   string
	OrdersFrom  string
	OrdersTo    string
}

func addDashboardFlags(cmd *cobra.Command, opts *DashboardOptions) {
	addStoreFlag(cmd, &opts.StoreOptions)
	cmd.Flags().StringVar(&opts.RevenueFrom, "revenue-from", "", "first day of the revenue chart (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.RevenueTo, "revenue-to", "", "last day of the revenue chart (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.OrdersFrom, "orders-from", "", "first day of the orders chart (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.OrdersTo, "orders-to", "", "last day of the orders chart (YYYY-MM-DD)")
}

// NewDashboardCommand creates the dashboard command.
func NewDashboardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DashboardOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the full dashboard",
		Long: `Show the account, stores, KPI cards, top customers, and the revenue
and orders charts for the selected store.

Example:
  xenodash dashboard
  xenodash dashboard --store 2 --revenue-from 2025-09-01 --revenue-to 2025-09-30
  xenodash dashboard --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(opts, cmd)
		},
	}
	addDashboardFlags(cmd, opts)
	return cmd
}

// loadDashboard builds a dashboard with the flag ranges applied and loads
// it.
func loadDashboard(ctx context.Context, a *app, opts *DashboardOptions) (*dashboard.Dashboard, error) {
	// Ranges were validated when the config was loaded.
	revenue, _ := a.cfg.RevenueRange()
	orders, _ := a.cfg.OrdersRange()

	var err error
	if opts.RevenueFrom != "" || opts.RevenueTo != "" {
		if revenue, err = parseRange(or(opts.RevenueFrom, revenue.FromString()), or(opts.RevenueTo, revenue.ToString())); err != nil {
			return nil, err
		}
	}
	if opts.OrdersFrom != "" || opts.OrdersTo != "" {
		if orders, err = parseRange(or(opts.OrdersFrom, orders.FromString()), or(opts.OrdersTo, orders.ToString())); err != nil {
			return nil, err
		}
	}

	d := a.dashboardWith(revenue, orders)
	if err := d.LoadStore(ctx, opts.StoreID); err != nil {
		return nil, storeFailure(err, opts.StoreID)
	}
	return d, nil
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func renderDashboard(a *app, d *dashboard.Dashboard) error {
	st := d.State()
	return a.out.Render(view.NewReport(st), func(w io.Writer) {
		view.WriteDashboard(w, st)
	})
}

func runDashboard(opts *DashboardOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := loadDashboard(commandContext(cmd), a, opts)
	if err != nil {
		return err
	}
	return renderDashboard(a, d)
}

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	DashboardOptions
	Schedule string
	Count    int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{DashboardOptions: DashboardOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-render the dashboard on a schedule",
		Long: `Show the dashboard, then refresh and re-render it on a cron schedule
until interrupted.

The schedule is a standard 5-field cron expression or a descriptor such as
"@every 30s" or "@hourly". With --format json each refresh is written as
one JSON line.

Example:
  xenodash watch --schedule "@every 30s"
  xenodash watch --count 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}
	addDashboardFlags(cmd, &opts.DashboardOptions)
	cmd.Flags().StringVar(&opts.Schedule, "schedule", "", "refresh schedule (default from config watch.schedule)")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "stop after this many refreshes (0 = until interrupted)")
	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	if opts.Count < 0 {
		return NewExitError(ExitCommandError, "--count must not be negative")
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	schedule := or(opts.Schedule, a.cfg.Watch.Schedule)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			a.log.WithField("signal", sig).Info("received signal, stopping watch")
			cancel()
		case <-ctx.Done():
		}
	}()

	d, err := loadDashboard(ctx, a, &opts.DashboardOptions)
	if err != nil {
		return err
	}
	if err := renderDashboard(a, d); err != nil {
		return err
	}

	// A tick that arrives while a refresh is running is dropped.
	ticks := make(chan struct{}, 1)
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid schedule %q", schedule), err)
	}
	c.Start()
	defer c.Stop()
	a.log.WithField("schedule", schedule).Info("watching dashboard")

	for n := 0; opts.Count == 0 || n < opts.Count; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
		}

		if err := d.Refresh(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return failure(err)
		}
		a.log.WithField("refresh", n+1).Debug("dashboard refreshed")
		if !a.out.JSON() {
			fmt.Fprintln(a.out.Writer)
		}
		if err := renderDashboard(a, d); err != nil {
			return err
		}
	}
	return nil
}
