package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"mozmon/internal/cli"
	"mozmon/internal/coordinator"
	"mozmon/internal/mozillion"

	"github.com/spf13/cobra"
)

var flagStatusRaw bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch and show current data usage",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&flagStatusRaw, "raw", false, "Dump the raw usage payload")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	acct, err := resolveAccount(cfg)
	if err != nil {
		return err
	}

	st := openStore()
	if st != nil {
		defer st.Close()
	}

	client := newPortalClient(cfg)
	coord := buildCoordinator(client, acct, st)

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Fetching usage for %s...\n", acct.DisplayName())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	reading, err := coord.Refresh(ctx)
	if err != nil {
		var authErr *mozillion.AuthError
		if errors.As(err, &authErr) {
			return fmt.Errorf("%w — check the account credentials, or re-run `mozmon login`", err)
		}
		return err
	}

	if st != nil {
		if err := st.SaveReading(acct.DisplayName(), reading); err != nil && !flagQuiet {
			fmt.Fprintf(os.Stderr, "  Could not record reading: %v\n", err)
		}
		if session, ok := coord.Session(); ok {
			_ = st.SaveSession(acct.DisplayName(), session)
		}
	}

	printReading(acct.DisplayName(), reading)

	if flagStatusRaw {
		fmt.Printf("  Raw payload: %v\n\n", reading.Raw)
	}

	return nil
}

func printReading(name string, r coordinator.Reading) {
	fmt.Println()
	fmt.Println(cli.RenderTitle("DATA USAGE"))
	fmt.Println()

	rows := [][]string{
		{"Account", name},
	}
	if r.SimNumber != "" {
		rows = append(rows, []string{"SIM", r.SimNumber})
	}
	rows = append(rows,
		[]string{"Used", cli.FormatGB(r.Usage)},
		[]string{"Allowance", cli.FormatGB(r.Total)},
		[]string{"Remaining", cli.FormatGB(r.Remaining)},
		[]string{"Used %", cli.FormatPercent(r.UsagePercentage)},
		[]string{"Unlimited", cli.FormatBool(r.Unlimited)},
	)

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Field", "Value"},
		Rows:    rows,
	}))

	if r.UsagePercentage != nil && !r.Unlimited {
		fmt.Printf("\n  %s\n", cli.RenderUsageBar(*r.UsagePercentage, 30))
	}

	fmt.Printf("\n  Fetched at %s\n\n", r.FetchedAt.Local().Format("3:04:05 PM"))
}
