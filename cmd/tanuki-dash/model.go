package main

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tanuki/pkg/runlog"
)

// tickMsg drives the periodic refresh.
type tickMsg time.Time

// runsMsg carries one refresh of run history. err is set when the database
// could not be read (bridge not started yet, for example).
type runsMsg struct {
	recent []runlog.Run
	active []runlog.Run
	err    error
}

// refreshInterval is how often the dashboard re-reads the database.
const refreshInterval = 2 * time.Second

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchRunsCmd reads the latest run history from the database.
func fetchRunsCmd(dbPath string) tea.Cmd {
	return func() tea.Msg {
		store, err := runlog.Open(dbPath)
		if err != nil {
			return runsMsg{err: err}
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), refreshInterval)
		defer cancel()

		recent, err := store.RecentRuns(ctx, "", 30)
		if err != nil {
			return runsMsg{err: err}
		}
		active, err := store.ActiveRuns(ctx)
		if err != nil {
			return runsMsg{err: err}
		}
		return runsMsg{recent: recent, active: active}
	}
}

// Model is the Bubble Tea model for the tanuki dashboard.
type Model struct {
	dbPath  string
	spinner spinner.Model
	theme   Theme

	recent []runlog.Run
	active []runlog.Run
	err    error

	width  int
	height int
}

// newModel creates a Model polling the given database.
func newModel(dbPath string) Model {
	theme := DefaultTheme()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Warning)
	return Model{dbPath: dbPath, spinner: sp, theme: theme}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(fetchRunsCmd(m.dbPath), m.spinner.Tick, tickCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, fetchRunsCmd(m.dbPath)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(fetchRunsCmd(m.dbPath), tickCmd())

	case runsMsg:
		m.recent = msg.recent
		m.active = msg.active
		m.err = msg.err

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}
