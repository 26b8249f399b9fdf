package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/xenodash/internal/account"
	"github.com/roach88/xenodash/internal/model"
	"github.com/roach88/xenodash/internal/registry"
	"github.com/roach88/xenodash/internal/view"
)

// StoresResult is the stores payload.
type StoresResult struct {
	Stores   []model.Store `json:"stores"`
	Selected int           `json:"selected,omitempty"`
}

// NewStoresCommand creates the stores command.
func NewStoresCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List connected stores",
		Long: `List the Shopify stores connected to the account.

The store analytics commands use is marked with '*'. Change it with
select.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStores(rootOpts, cmd)
		},
	}
}

func runStores(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	d := a.dashboard()
	if _, err := d.Resolve(commandContext(cmd), 0); err != nil && !errors.Is(err, registry.ErrNoStores) {
		return failure(err)
	}

	st := d.State()
	res := StoresResult{Stores: st.Stores}
	if res.Stores == nil {
		res.Stores = []model.Store{}
	}
	if st.Current != nil {
		res.Selected = st.Current.ID
	}

	return a.out.Render(res, func(w io.Writer) {
		view.WriteStores(w, st.Stores, st.Current)
	})
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select <store-id>",
		Short: "Choose the store analytics commands use",
		Long: `Choose the store that stats, revenue, orders, sync and dashboard use.

The choice is remembered in the state file.

Example:
  xenodash select 2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid store id %q", args[0]))
			}
			return runSelect(rootOpts, cmd, id)
		},
	}
}

func runSelect(opts *RootOptions, cmd *cobra.Command, id int) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	_, store, err := a.openStore(ctx, id)
	if err != nil {
		return err
	}
	if err := a.session.RememberStore(ctx, store.ID); err != nil {
		return WrapExitError(ExitCommandError, "failed to remember store", err)
	}

	return a.out.Render(store, func(w io.Writer) {
		fmt.Fprintf(w, "Selected store %d (%s)\n", store.ID, store.Name)
	})
}

// TenantOptions holds flags for tenant add.
type TenantOptions struct {
	*RootOptions
	Name     string
	StoreURL string
	APIToken string
}

// NewTenantCommand creates the tenant command group.
func NewTenantCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage connected Shopify stores",
	}
	cmd.AddCommand(newTenantAddCommand(rootOpts))
	return cmd
}

func newTenantAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TenantOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Connect a Shopify store",
		Long: `Connect a Shopify store to the account.

When --store-url is omitted it is derived from the name: lowercased, with
whitespace replaced by '-', as https://<name>.myshopify.com.

Example:
  xenodash tenant add --name "Fashion Store" --api-token shpat_xxx`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTenantAdd(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "store name (required)")
	cmd.Flags().StringVar(&opts.StoreURL, "store-url", "", "store URL (default derived from name)")
	cmd.Flags().StringVar(&opts.APIToken, "api-token", "", "Shopify Admin API access token (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("api-token")

	return cmd
}

func runTenantAdd(opts *TenantOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	in := account.NewTenantInput(opts.Name, opts.StoreURL, opts.APIToken)
	a.out.Debugf("Store URL: %s", in.StoreURL)

	ctx := commandContext(cmd)
	d := a.dashboard()
	if a.session.Active() {
		// Loads the store list so a first store becomes the selection.
		if _, err := d.Resolve(ctx, 0); err != nil && !errors.Is(err, registry.ErrNoStores) {
			return failure(err)
		}
	}
	store, err := d.AddTenant(ctx, in)
	if err != nil {
		return failure(err)
	}

	return a.out.Render(store, func(w io.Writer) {
		fmt.Fprintf(w, "Added store %d (%s) %s\n", store.ID, store.Name, store.URL)
	})
}
