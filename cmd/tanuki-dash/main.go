// Package main implements the tanuki-dash run monitor.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"tanuki/pkg/runlog"
)

func main() {
	dbPath := flag.String("db", runlog.DefaultDBPath(), "path to the run history database")
	flag.Parse()

	p := tea.NewProgram(newModel(*dbPath), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
		os.Exit(1)
	}
}
