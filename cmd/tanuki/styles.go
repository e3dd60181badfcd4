package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// cliStyles holds the terminal styles for human-facing output. When stdout
// is not a TTY every style renders as plain text.
type cliStyles struct {
	Header lipgloss.Style
	Good   lipgloss.Style
	Warn   lipgloss.Style
	Bad    lipgloss.Style
	Dim    lipgloss.Style
}

func newStyles() cliStyles {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		plain := lipgloss.NewStyle()
		return cliStyles{Header: plain, Good: plain, Warn: plain, Bad: plain, Dim: plain}
	}
	return cliStyles{
		Header: lipgloss.NewStyle().Bold(true),
		Good:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Bad:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
	}
}

// statusStyle picks the style for a run status string.
func (s cliStyles) statusStyle(status string) lipgloss.Style {
	switch status {
	case "done":
		return s.Good
	case "running":
		return s.Warn
	case "failed", "truncated":
		return s.Bad
	default:
		return s.Dim
	}
}
