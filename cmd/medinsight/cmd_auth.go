package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"medinsight/internal/api"
	"medinsight/internal/auth"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errPasswordMismatch rejects a registration whose confirmation differs.
var errPasswordMismatch = errors.New("passwords do not match")

// loginCmd signs in with email and password
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Sign in to MedInsight. The password may also be supplied through the
MEDINSIGHT_PASSWORD environment variable.

Example:
  medinsight login --email jane@example.com`,
	RunE: runLogin,
}

// registerCmd creates an email account
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	RunE:  runRegister,
}

// loginGoogleCmd runs the browser OAuth flow
var loginGoogleCmd = &cobra.Command{
	Use:   "login-google",
	Short: "Sign in with a Google account",
	Long: `Opens the Google consent page in your browser and waits for the redirect
on a local callback port. Requires oauth.client_id (or GOOGLE_CLIENT_ID).`,
	RunE: runLoginGoogle,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

func passwordFlag(cmd *cobra.Command) string {
	pw, _ := cmd.Flags().GetString("password")
	if pw == "" {
		pw = os.Getenv("MEDINSIGHT_PASSWORD")
	}
	return pw
}

func runLogin(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	password := passwordFlag(cmd)
	if strings.TrimSpace(email) == "" || password == "" {
		return fmt.Errorf("--email and --password are required")
	}

	return withServices(cmd, func(ctx context.Context, s *services) error {
		logger.Info("Signing in", zap.String("email", email))
		if err := s.auth.Login(ctx, email, password); err != nil {
			return reported(err)
		}
		printSignedIn(cmd, s.auth)
		return nil
	})
}

func runRegister(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	confirm, _ := cmd.Flags().GetString("confirm")
	password := passwordFlag(cmd)
	if strings.TrimSpace(email) == "" || password == "" {
		return fmt.Errorf("--email and --password are required")
	}
	if confirm != "" && confirm != password {
		return errPasswordMismatch
	}

	return withServices(cmd, func(ctx context.Context, s *services) error {
		logger.Info("Registering", zap.String("email", email))
		err := s.auth.Register(ctx, auth.RegisterParams{
			Email:    email,
			Password: password,
			Name:     name,
			Provider: api.ProviderEmail,
		})
		if err != nil {
			return reported(err)
		}
		printSignedIn(cmd, s.auth)
		return nil
	})
}

func runLoginGoogle(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateOAuth(); err != nil {
		return err
	}
	// The browser round trip gets the OAuth budget, not --timeout.
	return withServicesFor(cmd, cfg.GetOAuthTimeout(), func(ctx context.Context, s *services) error {
		fmt.Fprintln(cmd.OutOrStdout(), "Opening browser for Google sign-in...")
		fmt.Fprintln(cmd.OutOrStdout(), "Waiting for authorization (press Ctrl+C to cancel)")
		if err := s.auth.LoginWithGoogle(ctx); err != nil {
			return reported(err)
		}
		printSignedIn(cmd, s.auth)
		return nil
	})
}

func runLogout(cmd *cobra.Command, args []string) error {
	return withServices(cmd, func(ctx context.Context, s *services) error {
		if _, ok := s.auth.User(); !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
			return nil
		}
		err := s.auth.Logout(ctx)
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		if err != nil {
			// Local state is already gone; the server call was best-effort.
			logger.Warn("Sign-out was not clean", zap.Error(err))
		}
		return nil
	})
}

func runWhoami(cmd *cobra.Command, args []string) error {
	return withServices(cmd, func(ctx context.Context, s *services) error {
		if _, ok := s.auth.User(); !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
			return nil
		}
		printSignedIn(cmd, s.auth)
		return nil
	})
}

func printSignedIn(cmd *cobra.Command, h *auth.Holder) {
	u, ok := h.User()
	if !ok {
		return
	}
	out := cmd.OutOrStdout()
	name := u.Name
	if name == "" {
		name = u.Email
	}
	fmt.Fprintf(out, "✓ Signed in as %s <%s>\n", name, u.Email)
	fmt.Fprintf(out, "  Provider: %s\n", u.Provider)
}
