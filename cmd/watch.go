package cmd

import (
	"fmt"
	"time"

	"mozmon/internal/config"
	"mozmon/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var flagWatchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live terminal view of data usage",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&flagWatchInterval, "interval", 5*time.Minute, "Refresh interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	accounts := cfg.Accounts
	if flagAccount != "" {
		acct, err := resolveAccount(cfg)
		if err != nil {
			return err
		}
		accounts = []config.Account{acct}
	}

	st := openStore()
	if st != nil {
		defer st.Close()
	}

	client := newPortalClient(cfg)
	instances := make([]tui.Account, 0, len(accounts))
	for _, acct := range accounts {
		instances = append(instances, tui.Account{
			Name:        acct.DisplayName(),
			Coordinator: buildCoordinator(client, acct, st),
		})
	}

	app := tui.NewApp(instances, flagWatchInterval)
	p := tea.NewProgram(app, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("watch error: %w", err)
	}
	return nil
}
