package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/xenodash/internal/dashboard"
)

// CredentialOptions holds flags shared by signup and login.
type CredentialOptions struct {
	*RootOptions
	Email    string
	Password string
	Confirm  string
}

// NewSignupCommand creates the signup command.
func NewSignupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CredentialOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Long: `Create an account on the analytics backend.

The password must be at least 6 characters and match the confirmation.
Signing up does not log in.

Example:
  xenodash signup --email me@example.com --password secret1 --confirm secret1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignup(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (required)")
	cmd.Flags().StringVar(&opts.Confirm, "confirm", "", "password confirmation (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("confirm")

	return cmd
}

func runSignup(opts *CredentialOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.accounts().Signup(commandContext(cmd), opts.Email, opts.Password, opts.Confirm); err != nil {
		return failure(err)
	}
	return a.out.Render(map[string]string{"email": opts.Email}, func(w io.Writer) {
		fmt.Fprintf(w, "Account created for %s. Log in with: xenodash login\n", opts.Email)
	})
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CredentialOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		Long: `Log in to the analytics backend.

The session token is stored in the local state file, so later commands
do not need to log in again until you run logout.

Example:
  xenodash login --email me@example.com --password secret1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runLogin(opts *CredentialOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.accounts().Login(commandContext(cmd), opts.Email, opts.Password); err != nil {
		return failure(err)
	}
	a.log.WithField("email", opts.Email).Debug("session stored")
	return a.out.Render(map[string]string{"email": opts.Email}, func(w io.Writer) {
		fmt.Fprintf(w, "Logged in as %s\n", opts.Email)
	})
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Forget the stored session",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			was := a.session.Active()
			if err := a.dashboard().Logout(commandContext(cmd)); err != nil {
				return WrapExitError(ExitCommandError, "failed to clear session", err)
			}
			return a.out.Render(map[string]bool{"logged_out": was}, func(w io.Writer) {
				if was {
					fmt.Fprintln(w, "Logged out")
				} else {
					fmt.Fprintln(w, "Not logged in")
				}
			})
		},
	}
}

// WhoamiResult is the whoami payload.
type WhoamiResult struct {
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired,omitempty"`
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Long: `Show the account behind the stored session.

When the token is a JWT its expiry is shown too. The token is decoded for
display only and never verified.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(rootOpts, cmd)
		},
	}
}

func runWhoami(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	token, err := a.token()
	if err != nil {
		return err
	}
	user, err := a.client.Me(commandContext(cmd), token)
	if err != nil {
		return failure(err)
	}

	res := WhoamiResult{Name: dashboard.DisplayName(user.Email), Email: user.Email}
	if claims, ok := a.session.Claims(); ok && !claims.ExpiresAt.IsZero() {
		exp := claims.ExpiresAt
		res.ExpiresAt = &exp
		res.Expired = claims.Expired(time.Now())
	}

	return a.out.Render(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s <%s>\n", res.Name, res.Email)
		if res.ExpiresAt != nil {
			state := "expires"
			if res.Expired {
				state = "expired"
			}
			fmt.Fprintf(w, "Session %s %s\n", state, res.ExpiresAt.Format(time.RFC3339))
		}
	})
}
