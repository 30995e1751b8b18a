package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fastertools/drivelink/internal/auth"
	"github.com/fastertools/drivelink/internal/config"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  `Manage the Google OAuth tokens drivelink uses to reach Google Drive.`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
		newAuthTokenCmd(),
		newAuthConfigureCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var noBrowser bool
	var force bool
	var scope string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Google Drive",
		Long: `Authorize drivelink with the OAuth device flow.

A cached refresh token is tried first. When it is missing or rejected, a
verification URL and user code are printed; complete the authorization on
any device with a browser and drivelink picks up the tokens automatically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			if scope != "" {
				sess.cfg.Scope = scope
			}

			display := NewConsoleDisplay(cmd.OutOrStdout(), sess.cfg.NoBrowser)
			provider, err := sess.provider(auth.VariantDeviceFlow, display, force)
			if err != nil {
				return err
			}

			ctx, cancel := interruptible()
			defer cancel()

			return runLogin(ctx, cmd.OutOrStdout(), provider)
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically")
	cmd.Flags().BoolVar(&force, "force", false, "Ignore the cached refresh token and run the device flow")
	cmd.Flags().StringVar(&scope, "scope", "", "OAuth scope to request (default from config)")
	_ = cfgViper.BindPFlag(config.KeyNoBrowser, cmd.Flags().Lookup("no-browser"))

	return cmd
}

func runLogin(ctx context.Context, out io.Writer, provider auth.TokenProvider) error {
	fmt.Fprintln(out, "→ Logging in to Google Drive")
	fmt.Fprintln(out)

	result, err := provider.Authorize(ctx)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return fmt.Errorf("login cancelled")
		case errors.Is(err, auth.ErrDeviceCodeExpired):
			return fmt.Errorf("login timed out before the code was entered, run the command again")
		}
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, successColor.Sprint("✓ Successfully logged in!"))

	if claims, err := auth.ExtractIDToken(result); err == nil {
		if name := claims.DisplayName(); name != "" {
			fmt.Fprintf(out, "   Logged in as: %s\n", color.CyanString(name))
		}
	}

	if result.ExpiresIn > 0 {
		fmt.Fprintf(out, "   Access token valid for %s\n", formatValidity(time.Duration(result.ExpiresIn)*time.Second))
	}

	return nil
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout from Google Drive",
		Long:  `Remove the cached access and refresh tokens.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			return runLogout(cmd.OutOrStdout(), sess.store)
		},
	}
}

func runLogout(out io.Writer, store auth.SettingsStore) error {
	access, _ := store.CachedAccessToken()
	refresh, _ := store.CachedRefreshToken()
	if access == "" && refresh == "" {
		fmt.Fprintln(out, warnColor.Sprint("⚠ Not logged in"))
		return nil
	}

	if err := store.Clear(); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	fmt.Fprintln(out, successColor.Sprint("✓ Successfully logged out"))
	return nil
}

func newAuthStatusCmd() *cobra.Command {
	var showToken bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  `Display which tokens are cached for the configured OAuth client.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			return runStatus(cmd.OutOrStdout(), sess.cfg, sess.store, showToken)
		},
	}

	cmd.Flags().BoolVar(&showToken, "show-token", false, "Output only the cached access token (for use in scripts)")
	return cmd
}

func runStatus(out io.Writer, cfg *config.Config, store auth.SettingsStore, showToken bool) error {
	access, err := store.CachedAccessToken()
	if err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}
	refresh, err := store.CachedRefreshToken()
	if err != nil {
		return fmt.Errorf("failed to read refresh token: %w", err)
	}

	// --show-token prints the token and nothing else
	if showToken {
		if access == "" {
			return fmt.Errorf("not logged in")
		}
		fmt.Fprint(out, access)
		return nil
	}

	fmt.Fprintln(out, infoColor.Sprint("→ Authentication Status"))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Client:        %s\n", cfg.ClientID)
	fmt.Fprintf(out, "Token store:   %s\n", cfg.Store)
	fmt.Fprintln(out)

	if access == "" && refresh == "" {
		fmt.Fprintln(out, "🔐 Not logged in")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Run %s to authenticate\n", color.CyanString("drivelink auth login"))
		return nil
	}

	fmt.Fprintln(out, successColor.Sprint("✓ Logged in"))
	if access != "" {
		fmt.Fprintln(out, "Access Token:  "+color.GreenString("Cached"))
	} else {
		fmt.Fprintln(out, "Access Token:  "+color.YellowString("Missing"))
	}
	if refresh != "" {
		fmt.Fprintln(out, "Refresh Token: "+color.GreenString("Available"))
		fmt.Fprintln(out, "               (access token renews automatically)")
	} else {
		fmt.Fprintln(out, "Refresh Token: "+color.YellowString("Missing"))
	}
	return nil
}

func newAuthTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a fresh access token",
		Long: `Refresh the access token from the cached refresh token and print it.
Never prompts, so it is safe to call from scripts and cron jobs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			provider, err := sess.provider(auth.VariantRefreshOnly, nil, false)
			if err != nil {
				return err
			}

			ctx, cancel := interruptible()
			defer cancel()

			return runToken(ctx, cmd.OutOrStdout(), provider)
		},
	}
}

func runToken(ctx context.Context, out io.Writer, provider auth.AccessTokenProvider) error {
	token, err := provider.ProvideAccessToken(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNoRefreshToken) {
			return fmt.Errorf("not logged in: run 'drivelink auth login' first")
		}
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

// formatValidity renders a duration as hours and minutes
func formatValidity(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return color.GreenString("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// stdinIsTerminal reports whether prompts can be shown
func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
