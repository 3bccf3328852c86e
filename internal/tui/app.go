// Package tui provides the interactive Bubble Tea watch view for mozmon.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mozmon/internal/cli"
	"mozmon/internal/coordinator"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// RefreshedMsg is sent when a background refresh for one account finishes.
type RefreshedMsg struct {
	Index   int
	Reading coordinator.Reading
	Err     error
}

// tickMsg fires once per configured interval to schedule the next round of
// refreshes.
type tickMsg time.Time

const refreshTimeout = 90 * time.Second

// Account is one monitored plan shown in the watch view.
type Account struct {
	Name        string
	Coordinator *coordinator.Coordinator
}

type accountState struct {
	reading    *coordinator.Reading
	err        error
	refreshing bool
	updatedAt  time.Time
}

// App is the root Bubble Tea model for `mozmon watch`.
type App struct {
	accounts []Account
	states   []accountState
	interval time.Duration

	spinner  spinner.Model
	width    int
	quitting bool
}

// NewApp creates the watch model. interval is the delay between refresh
// rounds; anything under a minute is raised to a minute.
func NewApp(accounts []Account, interval time.Duration) App {
	if interval < time.Minute {
		interval = time.Minute
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(cli.ColorAccent)

	return App{
		accounts: accounts,
		states:   make([]accountState, len(accounts)),
		interval: interval,
		spinner:  sp,
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick, tickCmd(a.interval)}
	cmds = append(cmds, a.refreshAll()...)
	return tea.Batch(cmds...)
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func refreshCmd(index int, coord *coordinator.Coordinator) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		reading, err := coord.Refresh(ctx)
		return RefreshedMsg{Index: index, Reading: reading, Err: err}
	}
}

// refreshAll starts a refresh for every account not already in flight and
// returns the commands. Mutates a.states.
func (a *App) refreshAll() []tea.Cmd {
	var cmds []tea.Cmd
	for i := range a.accounts {
		if a.states[i].refreshing {
			continue
		}
		a.states[i].refreshing = true
		cmds = append(cmds, refreshCmd(i, a.accounts[i].Coordinator))
	}
	return cmds
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			a.quitting = true
			return a, tea.Quit
		case "r":
			return a, tea.Batch(a.refreshAll()...)
		}
		return a, nil

	case tickMsg:
		cmds := a.refreshAll()
		cmds = append(cmds, tickCmd(a.interval))
		return a, tea.Batch(cmds...)

	case RefreshedMsg:
		if msg.Index < 0 || msg.Index >= len(a.states) {
			return a, nil
		}
		st := &a.states[msg.Index]
		st.refreshing = false
		st.updatedAt = time.Now()
		if msg.Err != nil {
			st.err = msg.Err
			// Keep showing the prior reading alongside the error.
			return a, nil
		}
		st.err = nil
		reading := msg.Reading
		st.reading = &reading
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(cli.ColorText)
	watchNameStyle  = lipgloss.NewStyle().Bold(true).Foreground(cli.ColorAccent)
	watchDimStyle   = lipgloss.NewStyle().Foreground(cli.ColorTextMuted)
	watchErrStyle   = lipgloss.NewStyle().Foreground(cli.ColorRed)
	watchHelpStyle  = lipgloss.NewStyle().Foreground(cli.ColorTextDim)
)

// View implements tea.Model.
func (a App) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("mozmon watch"))
	b.WriteString(watchDimStyle.Render(fmt.Sprintf("  every %s", a.interval)))
	b.WriteString("\n\n")

	for i, acct := range a.accounts {
		st := a.states[i]

		b.WriteString(watchNameStyle.Render(acct.Name))
		if st.refreshing {
			b.WriteString(" " + a.spinner.View())
		}
		b.WriteString("\n")

		if st.err != nil {
			b.WriteString("  " + watchErrStyle.Render(st.err.Error()) + "\n")
		}

		if r := st.reading; r != nil {
			b.WriteString("  " + a.renderReading(*r) + "\n")
			b.WriteString("  " + watchDimStyle.Render("updated "+cli.FormatAgo(st.updatedAt)) + "\n")
		} else if st.err == nil && !st.refreshing {
			b.WriteString("  " + watchDimStyle.Render("no reading yet") + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(watchHelpStyle.Render("r refresh · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (a App) renderReading(r coordinator.Reading) string {
	if r.Unlimited {
		return fmt.Sprintf("%s used · unlimited", cli.FormatGB(r.Usage))
	}

	line := fmt.Sprintf("%s used of %s · %s left",
		cli.FormatGB(r.Usage), cli.FormatGB(r.Total), cli.FormatGB(r.Remaining))
	if r.UsagePercentage != nil {
		line += "\n  " + cli.RenderUsageBar(*r.UsagePercentage, 30)
	}
	return line
}
