package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hospicore/auth-system/internal/core/ports"
	"github.com/hospicore/auth-system/internal/core/service"
	apiclient "github.com/hospicore/auth-system/internal/infrastructure/api"
	"github.com/hospicore/auth-system/internal/infrastructure/store"
	"github.com/hospicore/auth-system/internal/pkg/config"
	"github.com/hospicore/auth-system/pkg/logger"
)

// newSession builds the session manager backed by the file store and restores
// any persisted session before the command runs.
func newSession(ctx context.Context) (*service.SessionManager, *apiclient.Client, error) {
	cfg := config.LoadClient()
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: true, Output: os.Stderr})

	path := cfg.SessionFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".hospctl", "session.json")
	}

	client := apiclient.NewClient(cfg.APIBaseURL)
	mgr := service.NewSessionManager(client, store.NewFile(path), nil, log)
	mgr.OnBearerChange(client.SetToken)
	mgr.Initialize(ctx)
	return mgr, client, nil
}

func newLoginCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <identifier>",
		Short: "Authenticate with username, email or phone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := newSession(cmd.Context())
			if err != nil {
				return err
			}

			res := mgr.Login(cmd.Context(), args[0], password)
			if !res.Success {
				return fmt.Errorf("%s", res.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", res.User.Name, res.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	must(cmd.MarkFlagRequired("password"))
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the local session and revoke the refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, _, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			mgr.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newRegisterCmd() *cobra.Command {
	var reg ports.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account and trigger OTP delivery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, _, err := newSession(cmd.Context())
			if err != nil {
				return err
			}

			res := mgr.Register(cmd.Context(), reg)
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if !res.Success {
				return fmt.Errorf("registration failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.Username, "username", "", "login name")
	cmd.Flags().StringVar(&reg.FullName, "name", "", "display name")
	cmd.Flags().StringVar(&reg.Email, "email", "", "email address for OTP delivery")
	cmd.Flags().StringVar(&reg.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&reg.Password, "password", "", "account password")
	cmd.Flags().StringVar(&reg.Role, "role", "", "requested role (defaults to patient)")
	must(cmd.MarkFlagRequired("username"))
	must(cmd.MarkFlagRequired("email"))
	must(cmd.MarkFlagRequired("password"))
	return cmd
}

func newVerifyOTPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-otp <email> <code>",
		Short: "Activate an account with the emailed code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := newSession(cmd.Context())
			if err != nil {
				return err
			}

			res := mgr.VerifyOTP(cmd.Context(), args[0], args[1])
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if !res.Success {
				return fmt.Errorf("verification failed")
			}
			return nil
		},
	}
}

func newResendOTPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend-otp <email>",
		Short: "Request a fresh activation code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := newSession(cmd.Context())
			if err != nil {
				return err
			}

			res := mgr.ResendOTP(cmd.Context(), args[0])
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if !res.Success {
				return fmt.Errorf("resend failed")
			}
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the current session's user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, _, err := newSession(cmd.Context())
			if err != nil {
				return err
			}

			user := mgr.CurrentUser()
			if user == nil {
				return fmt.Errorf("not logged in")
			}
			out, err := json.MarshalIndent(user, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
