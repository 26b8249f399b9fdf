package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/xenodash/internal/account"
	"github.com/roach88/xenodash/internal/api"
	"github.com/roach88/xenodash/internal/config"
	"github.com/roach88/xenodash/internal/dashboard"
	"github.com/roach88/xenodash/internal/logging"
	"github.com/roach88/xenodash/internal/model"
	"github.com/roach88/xenodash/internal/registry"
	"github.com/roach88/xenodash/internal/session"
	"github.com/roach88/xenodash/internal/syncjob"
)

// app holds what a command needs to talk to the backend: configuration,
// the durable session and an API client.
type app struct {
	opts    *RootOptions
	cfg     *config.Config
	log     *logrus.Logger
	session *session.Session
	client  *api.Client
	out     *OutputFormatter
}

// openApp loads configuration, opens the state file and builds the client.
// Callers must Close the app.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	log := logging.New(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if cfg.File != "" {
		log.WithField("file", cfg.File).Debug("config loaded")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.State.Path), 0o700); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create state directory", err)
	}
	sess, err := session.Open(cfg.State.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open state file", err)
	}

	client, err := api.New(cfg.API.BaseURL, api.WithTimeout(cfg.API.Timeout), api.WithLogger(log))
	if err != nil {
		sess.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create API client", err)
	}

	return &app{
		opts:    opts,
		cfg:     cfg,
		log:     log,
		session: sess,
		client:  client,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}, nil
}

func (a *app) Close() {
	if err := a.session.Close(); err != nil {
		a.log.WithError(err).Error("error closing state file")
	}
}

// commandContext returns the command's context, or a background context when
// the command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var errNotLoggedIn = NewExitError(ExitFailure, "not logged in (run: xenodash login)")

func (a *app) token() (string, error) {
	token, ok := a.session.CurrentToken()
	if !ok {
		return "", errNotLoggedIn
	}
	return token, nil
}

func (a *app) accounts() *account.Service {
	return account.New(a.client, a.session)
}

func (a *app) syncOptions() []syncjob.Option {
	opts := []syncjob.Option{
		syncjob.WithLogger(a.log),
		syncjob.WithSettleDelay(a.cfg.Sync.SettleDelay),
	}
	if a.opts.Sleeper != nil {
		opts = append(opts, syncjob.WithSleeper(a.opts.Sleeper))
	}
	return opts
}

// dashboard builds a dashboard over the configured chart ranges.
func (a *app) dashboard() *dashboard.Dashboard {
	// Ranges were validated when the config was loaded.
	revenue, _ := a.cfg.RevenueRange()
	orders, _ := a.cfg.OrdersRange()
	return a.dashboardWith(revenue, orders)
}

func (a *app) dashboardWith(revenue, orders model.DateRange) *dashboard.Dashboard {
	return dashboard.New(a.client, a.session,
		dashboard.WithLogger(a.log),
		dashboard.WithRanges(revenue, orders),
		dashboard.WithSyncOptions(a.syncOptions()...),
	)
}

// openStore builds a dashboard and makes the store a command operates on
// current: the --store flag when set, else the remembered selection, else
// the first store. Nothing is fetched yet.
func (a *app) openStore(ctx context.Context, flagID int) (*dashboard.Dashboard, model.Store, error) {
	d := a.dashboard()
	store, err := d.Resolve(ctx, flagID)
	if err != nil {
		return nil, model.Store{}, storeFailure(err, flagID)
	}
	return d, store, nil
}

// storeFailure is failure with the store selection errors spelled out.
func storeFailure(err error, id int) error {
	switch {
	case errors.Is(err, registry.ErrNoStores):
		return NewExitError(ExitFailure, "no stores connected (run: xenodash tenant add)")
	case errors.Is(err, registry.ErrUnknownStore):
		return NewExitError(ExitFailure, fmt.Sprintf("unknown store %d", id))
	}
	return failure(err)
}

// failure converts an operation error into an ExitError, keeping form
// messages as-is.
func failure(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	var formErr *account.FormError
	if errors.As(err, &formErr) {
		return NewExitError(ExitFailure, formErr.Message)
	}
	if errors.Is(err, dashboard.ErrNotLoggedIn) {
		return errNotLoggedIn
	}
	if httpErr, ok := api.AsHTTP(err); ok {
		return NewExitError(ExitFailure, api.ServerMessage(httpErr, fmt.Sprintf("request failed with status %d", httpErr.Status)))
	}
	return WrapExitError(ExitFailure, "request failed", err)
}

// parseRange builds a date range from flag values.
func parseRange(from, to string) (model.DateRange, error) {
	r, err := model.ParseDateRange(from, to)
	if err != nil {
		return model.DateRange{}, WrapExitError(ExitCommandError, "invalid date range", err)
	}
	return r, nil
}
