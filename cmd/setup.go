package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"mozmon/internal/cli"
	"mozmon/internal/config"
	"mozmon/internal/mozillion"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive account setup wizard",
	Long:  "Add or update a monitored account: portal credentials or a captured cookie, plan discovery, and a validation fetch.",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

const (
	authMethodCredentials = "credentials"
	authMethodCookie      = "cookie"
)

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load()

	fmt.Println()
	fmt.Println(cli.RenderTitle("MOZMON SETUP"))
	fmt.Println()

	acct := config.Account{}
	if existing, ok := cfg.FindAccount(flagAccount); ok && flagAccount != "" {
		acct = existing
	}

	// 1. Auth method.
	authMethod := authMethodCredentials
	if acct.SessionCookie != "" && !acct.HasCredentials() {
		authMethod = authMethodCookie
	}

	authForm := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("How should mozmon sign in?").
			Options(
				huh.NewOption("Email and password (can re-login automatically)", authMethodCredentials),
				huh.NewOption("Captured browser cookie (expires, no recovery)", authMethodCookie),
			).
			Value(&authMethod),
	))
	if err := authForm.Run(); err != nil {
		return err
	}

	switch authMethod {
	case authMethodCredentials:
		if err := promptCredentials(&acct); err != nil {
			return err
		}
		acct.SessionCookie = ""
		acct.XSRFToken = ""
	case authMethodCookie:
		if err := promptCookie(&acct); err != nil {
			return err
		}
		acct.Email = ""
		acct.Password = ""
		acct.TOTPSecret = ""
	}

	client := newPortalClient(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// 2. Plan selection: discovered from the dashboard when we can log in,
	// manual entry otherwise.
	session, err := setupSession(ctx, client, acct)
	if err != nil {
		return fmt.Errorf("cannot connect to the portal: %w", err)
	}

	if err := selectPlan(ctx, client, session, &acct); err != nil {
		return err
	}

	// 3. Account name and interval.
	if err := promptAccountDetails(&acct); err != nil {
		return err
	}

	// 4. Validation fetch before saving.
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Validating with a usage fetch...\n")
	}
	if _, err := client.FetchUsage(ctx, acct.OrderDetailID, acct.SimPlanID, session); err != nil {
		fmt.Printf("  Validation fetch failed: %v\n", err)

		saveAnyway := false
		confirm := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title("Save the account anyway?").
				Value(&saveAnyway),
		))
		if err := confirm.Run(); err != nil {
			return err
		}
		if !saveAnyway {
			return errors.New("setup aborted")
		}
	}

	cfg.UpsertAccount(acct)
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved %s to %s\n", acct.DisplayName(), config.ConfigPath())
	fmt.Println("  Check it with `mozmon status`, or run `mozmon daemon` to poll continuously.")
	fmt.Println()
	return nil
}

func promptCredentials(acct *config.Account) error {
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Portal email").
			Value(&acct.Email).
			Validate(requireValue("email")),
		huh.NewInput().
			Title("Portal password").
			EchoMode(huh.EchoModePassword).
			Value(&acct.Password).
			Validate(requireValue("password")),
		huh.NewInput().
			Title("TOTP secret (leave blank if 2FA is off)").
			Value(&acct.TOTPSecret),
	))
	return form.Run()
}

func promptCookie(acct *config.Account) error {
	form := huh.NewForm(huh.NewGroup(
		huh.NewText().
			Title("Cookie header").
			Description("DevTools > Network > any portal request > copy the Cookie header value").
			Value(&acct.SessionCookie).
			Validate(requireValue("cookie header")),
		huh.NewInput().
			Title("XSRF token (blank to derive from the XSRF-TOKEN cookie)").
			Value(&acct.XSRFToken),
	))
	if err := form.Run(); err != nil {
		return err
	}
	acct.SessionCookie = strings.TrimSpace(acct.SessionCookie)
	return nil
}

// setupSession obtains a portal session for discovery and validation: a real
// login when credentials were entered, otherwise the captured cookie as-is.
func setupSession(ctx context.Context, client *mozillion.Client, acct config.Account) (mozillion.Session, error) {
	if acct.HasCredentials() {
		if !flagQuiet {
			fmt.Fprintf(os.Stderr, "  Logging in as %s...\n", acct.Email)
		}
		return client.Login(ctx, accountCredentials(acct))
	}
	return mozillion.Session{
		CookieHeader: acct.SessionCookie,
		XSRFToken:    acct.XSRFToken,
	}, nil
}

func selectPlan(ctx context.Context, client *mozillion.Client, session mozillion.Session, acct *config.Account) error {
	plans, err := client.FetchDashboardPlans(ctx, session)
	if err != nil && !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Dashboard fetch failed (%v), falling back to manual entry\n", err)
	}

	if len(plans) > 0 {
		options := make([]huh.Option[int], 0, len(plans)+1)
		for i, p := range plans {
			label := p.DisplayName
			if p.SimNumber != "" {
				label = fmt.Sprintf("%s (%s)", p.DisplayName, p.SimNumber)
			}
			options = append(options, huh.NewOption(label, i))
		}
		options = append(options, huh.NewOption("Enter ids manually", -1))

		choice := 0
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[int]().
				Title("Which SIM plan should be monitored?").
				Options(options...).
				Value(&choice),
		))
		if err := form.Run(); err != nil {
			return err
		}

		if choice >= 0 {
			p := plans[choice]
			acct.OrderDetailID = p.OrderDetailID
			acct.SimPlanID = p.SimPlanID
			acct.SimNumber = p.SimNumber
			return nil
		}
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Order detail id").
			Value(&acct.OrderDetailID).
			Validate(requireValue("order detail id")),
		huh.NewInput().
			Title("SIM plan id").
			Value(&acct.SimPlanID).
			Validate(requireValue("SIM plan id")),
		huh.NewInput().
			Title("SIM number (optional)").
			Value(&acct.SimNumber),
	))
	return form.Run()
}

func promptAccountDetails(acct *config.Account) error {
	interval := ""
	if acct.ScanInterval != 0 {
		interval = fmt.Sprintf("%d", acct.ScanInterval)
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Account name (blank to use the SIM number)").
			Value(&acct.Name),
		huh.NewInput().
			Title("Polling interval in seconds (blank for daily)").
			Value(&interval).
			Validate(func(s string) error {
				s = strings.TrimSpace(s)
				if s == "" {
					return nil
				}
				var n int
				if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n <= 0 {
					return errors.New("enter a positive number of seconds")
				}
				return nil
			}),
	))
	if err := form.Run(); err != nil {
		return err
	}

	interval = strings.TrimSpace(interval)
	if interval == "" {
		acct.ScanInterval = 0
	} else {
		fmt.Sscanf(interval, "%d", &acct.ScanInterval)
	}
	return nil
}

func requireValue(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}
