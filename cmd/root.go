package cmd

import (
	"errors"
	"fmt"
	"os"

	"mozmon/internal/config"
	"mozmon/internal/coordinator"
	"mozmon/internal/mozillion"
	"mozmon/internal/store"

	"github.com/spf13/cobra"
)

var (
	flagAccount string
	flagQuiet   bool
	flagBaseURL string
)

var rootCmd = &cobra.Command{
	Use:   "mozmon",
	Short: "Mozillion SIM data usage monitor",
	Long:  "Monitor data usage of Mozillion SIM plans: login, usage readings, history, and a polling daemon.",
	RunE:  runStatus,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagAccount, "account", "a", "", "Account to operate on (name, SIM number, or order detail id)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "Override the portal base URL")
}

// loadConfig loads the config file, pointing at setup when none exists.
func loadConfig() (config.Config, error) {
	if !config.Exists() {
		return config.Config{}, errors.New("no configuration found — run `mozmon setup` first")
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// resolveAccount picks the account addressed by --account, or the sole
// configured account when the flag is empty.
func resolveAccount(cfg config.Config) (config.Account, error) {
	acct, ok := cfg.FindAccount(flagAccount)
	if !ok {
		if flagAccount == "" {
			return config.Account{}, errors.New("multiple accounts configured — select one with --account")
		}
		return config.Account{}, fmt.Errorf("no account matches %q", flagAccount)
	}
	return acct, nil
}

// newPortalClient builds the portal client, honoring --base-url over the
// config override.
func newPortalClient(cfg config.Config) *mozillion.Client {
	baseURL := cfg.General.BaseURL
	if flagBaseURL != "" {
		baseURL = flagBaseURL
	}
	return mozillion.NewClient(baseURL)
}

// accountCredentials maps config credentials to the portal shape.
func accountCredentials(acct config.Account) mozillion.Credentials {
	return mozillion.Credentials{
		Email:      acct.Email,
		Password:   acct.Password,
		TOTPSecret: acct.TOTPSecret,
		Origin:     acct.EffectiveOrigin(),
	}
}

// buildCoordinator assembles the refresh coordinator for one account. When a
// store is given, a cached session from a previous run is installed so the
// first refresh can skip the login.
func buildCoordinator(client *mozillion.Client, acct config.Account, st *store.Store) *coordinator.Coordinator {
	var auth coordinator.AuthMode
	if acct.HasCredentials() {
		creds := accountCredentials(acct)
		auth = coordinator.Credentials{
			Email:      creds.Email,
			Password:   creds.Password,
			TOTPSecret: creds.TOTPSecret,
			Origin:     creds.Origin,
		}
	} else {
		auth = coordinator.PrecapturedSession{
			CookieHeader: acct.SessionCookie,
			XSRFToken:    acct.XSRFToken,
		}
	}

	coord := coordinator.New(client, coordinator.Options{
		Plan: mozillion.PlanIdentity{
			OrderDetailID: acct.OrderDetailID,
			SimPlanID:     acct.SimPlanID,
			SimNumber:     acct.SimNumber,
			DisplayName:   acct.DisplayName(),
		},
		Auth:         auth,
		UsageKey:     acct.EffectiveUsageKey(),
		RemainingKey: acct.EffectiveRemainingKey(),
	})

	if st != nil {
		if session, ok, err := st.GetSession(acct.DisplayName()); err == nil && ok {
			coord.SetSession(session)
		}
	}

	return coord
}

// openStore opens the readings database. Callers treat a nil store as
// "persistence unavailable" and carry on.
func openStore() *store.Store {
	st, err := store.Open(config.StorePath())
	if err != nil {
		if !flagQuiet {
			fmt.Fprintf(os.Stderr, "  Store unavailable: %v\n", err)
		}
		return nil
	}
	return st
}
