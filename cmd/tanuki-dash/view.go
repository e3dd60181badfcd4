package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"tanuki/pkg/runlog"
)

// View implements tea.Model.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Primary)
	mutedStyle := lipgloss.NewStyle().Foreground(m.theme.Muted)

	var b strings.Builder
	b.WriteString(titleStyle.Render("tanuki runs"))
	b.WriteString("  ")
	b.WriteString(mutedStyle.Render("q quit · r refresh"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(m.theme.Error).Render(
			fmt.Sprintf("database unavailable: %v", m.err)))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.renderActive())
	b.WriteString("\n")
	b.WriteString(m.renderRecent())
	return b.String()
}

func (m Model) renderActive() string {
	header := lipgloss.NewStyle().Bold(true)
	if len(m.active) == 0 {
		return header.Render("in flight") + "\n  " +
			lipgloss.NewStyle().Foreground(m.theme.Muted).Render("(idle)") + "\n"
	}

	var b strings.Builder
	b.WriteString(header.Render("in flight"))
	b.WriteString("\n")
	for _, r := range m.active {
		b.WriteString(fmt.Sprintf("  %s %-20s %-8s %s %s\n",
			m.spinner.View(),
			clip(string(r.Thread), 20),
			r.Engine,
			lipgloss.NewStyle().Foreground(m.theme.Muted).Render(elapsed(r.StartedAt)),
			clip(firstLine(r.Prompt), 50)))
	}
	return b.String()
}

func (m Model) renderRecent() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render("recent"))
	b.WriteString("\n")
	if len(m.recent) == 0 {
		b.WriteString("  " + lipgloss.NewStyle().Foreground(m.theme.Muted).Render("(no runs yet)") + "\n")
		return b.String()
	}

	rows := m.recent
	if max := m.height - 8 - len(m.active); max > 0 && len(rows) > max {
		rows = rows[:max]
	}
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("  %s %-20s %-8s %s\n",
			m.statusBadge(r),
			clip(string(r.Thread), 20),
			r.Engine,
			clip(firstLine(r.Prompt), 50)))
	}
	return b.String()
}

// statusBadge renders a colored glyph for the run's status.
func (m Model) statusBadge(r runlog.Run) string {
	switch r.Status {
	case runlog.StatusDone:
		return lipgloss.NewStyle().Foreground(m.theme.Success).Render("✓")
	case runlog.StatusFailed:
		return lipgloss.NewStyle().Foreground(m.theme.Error).Render("✗")
	case runlog.StatusTruncated:
		return lipgloss.NewStyle().Foreground(m.theme.Warning).Render("!")
	case runlog.StatusRunning:
		return m.spinner.View()
	default:
		return "·"
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// elapsed formats how long a run has been going.
func elapsed(start time.Time) string {
	if start.IsZero() {
		return ""
	}
	d := time.Since(start).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String()
}
