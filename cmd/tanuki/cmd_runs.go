package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tanuki/pkg/event"
	"tanuki/pkg/runlog"
)

// newRunsCmd creates the "tanuki runs" subcommand.
func newRunsCmd(flags *rootFlags) *cobra.Command {
	var limit int
	var folderName string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runlog.Open(flags.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			thread := event.ThreadID("")
			if folderName != "" {
				cfg, err := loadConfig(flags)
				if err != nil {
					return err
				}
				f := cfg.FolderByName(folderName)
				if f == nil {
					return fmt.Errorf("no folder named %q", folderName)
				}
				thread = f.ThreadID()
			}

			runs, err := store.RecentRuns(cmd.Context(), thread, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}

			styles := newStyles()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.Header.Render(fmt.Sprintf("%-5s %-20s %-8s %-10s %-19s %s",
				"ID", "THREAD", "ENGINE", "STATUS", "STARTED", "PROMPT")))
			for _, r := range runs {
				prompt := firstLine(r.Prompt)
				if len(prompt) > 48 {
					prompt = prompt[:48] + "…"
				}
				fmt.Fprintf(out, "%-5d %-20s %-8s %-10s %-19s %s\n",
					r.ID,
					clipCol(string(r.Thread), 20),
					r.Engine,
					styles.statusStyle(r.Status).Render(fmt.Sprintf("%-10s", r.Status)),
					r.StartedAt.Format("2006-01-02 15:04:05"),
					prompt)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows")
	cmd.Flags().StringVar(&folderName, "folder", "", "only runs for this folder")
	return cmd
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func clipCol(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
