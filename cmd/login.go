package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and cache a fresh portal session",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the cached portal session",
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	acct, err := resolveAccount(cfg)
	if err != nil {
		return err
	}
	if !acct.HasCredentials() {
		return errors.New("account has no email and password configured; sessions can only be refreshed by logging in")
	}

	client := newPortalClient(cfg)

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Logging in as %s...\n", acct.Email)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	session, err := client.Login(ctx, accountCredentials(acct))
	if err != nil {
		return err
	}

	st := openStore()
	if st != nil {
		defer st.Close()
		if err := st.SaveSession(acct.DisplayName(), session); err != nil {
			return fmt.Errorf("caching session: %w", err)
		}
	}

	fmt.Printf("  Logged in. Session cached for %s.\n", acct.DisplayName())
	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	acct, err := resolveAccount(cfg)
	if err != nil {
		return err
	}

	st := openStore()
	if st == nil {
		return errors.New("store unavailable; no session to discard")
	}
	defer st.Close()

	if err := st.DeleteSession(acct.DisplayName()); err != nil {
		return fmt.Errorf("discarding session: %w", err)
	}

	fmt.Printf("  Cached session for %s discarded.\n", acct.DisplayName())
	return nil
}
