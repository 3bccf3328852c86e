package cmd

import (
	"errors"
	"fmt"

	"mozmon/internal/cli"

	"github.com/spf13/cobra"
)

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded usage readings",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 30, "Max readings to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(_ *cobra.Command, _ []string) error {
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
		return errors.New("store unavailable")
	}
	defer st.Close()

	readings, err := st.RecentReadings(acct.DisplayName(), flagHistoryLimit)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("USAGE HISTORY"))
	fmt.Println()

	if len(readings) == 0 {
		fmt.Printf("  No readings recorded for %s yet.\n", acct.DisplayName())
		fmt.Println("  Run `mozmon status` or the daemon to collect some.")
		fmt.Println()
		return nil
	}

	rows := make([][]string, 0, len(readings))
	for _, r := range readings {
		rows = append(rows, []string{
			r.TakenAt.Local().Format("2006-01-02 15:04"),
			cli.FormatGB(r.Usage),
			cli.FormatGB(r.Total),
			cli.FormatGB(r.Remaining),
			cli.FormatPercent(r.UsagePercentage),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Title:   acct.DisplayName(),
		Headers: []string{"Taken At", "Used", "Allowance", "Remaining", "Used %"},
		Rows:    rows,
	}))

	// Oldest-first sparkline of the usage trend.
	var series []float64
	for i := len(readings) - 1; i >= 0; i-- {
		if readings[i].Usage != nil {
			series = append(series, *readings[i].Usage)
		}
	}
	if len(series) > 1 {
		fmt.Printf("\n  Trend: %s\n", cli.RenderSparkline(series))
	}

	latest := readings[0]
	fmt.Printf("\n  Latest reading %s\n\n", cli.FormatAgo(latest.TakenAt))

	return nil
}
