package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"mozmon/internal/cli"

	"github.com/spf13/cobra"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List SIM plans visible on the account dashboard",
	Long:  "Log in and list every SIM plan on the dashboard with the ids needed to monitor it.",
	RunE:  runPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)
}

func runPlans(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	acct, err := resolveAccount(cfg)
	if err != nil {
		return err
	}
	if !acct.HasCredentials() {
		return errors.New("plan discovery needs email and password; cookie-only accounts cannot list plans")
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

	plans, err := client.FetchDashboardPlans(ctx, session)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("SIM PLANS"))
	fmt.Println()

	if len(plans) == 0 {
		fmt.Println("  No SIM plans found on the dashboard.")
		fmt.Println("  Enter the order detail id and SIM plan id manually via `mozmon setup`.")
		fmt.Println()
		return nil
	}

	rows := make([][]string, 0, len(plans))
	for _, p := range plans {
		sim := p.SimNumber
		if sim == "" {
			sim = cli.Missing
		}
		rows = append(rows, []string{p.DisplayName, sim, p.SimPlanID, p.OrderDetailID})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Plan", "SIM", "Plan ID", "Order Detail ID"},
		Rows:    rows,
	}))
	fmt.Println()

	return nil
}
