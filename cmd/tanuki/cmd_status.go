package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tanuki/pkg/runlog"
)

// newStatusCmd creates the "tanuki status" subcommand.
func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured folders and in-flight runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			store, err := runlog.Open(flags.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			active, err := store.ActiveRuns(cmd.Context())
			if err != nil {
				return err
			}
			running := make(map[string]runlog.Run)
			for _, r := range active {
				running[string(r.Thread)] = r
			}

			styles := newStyles()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.Header.Render("folders"))
			if len(cfg.Folders) == 0 {
				fmt.Fprintln(out, "  (none)")
			}
			for _, f := range cfg.Folders {
				if r, ok := running[f.Thread]; ok {
					fmt.Fprintf(out, "  %-16s %s %s\n", f.Name,
						styles.Warn.Render("running"), styles.Dim.Render(firstLine(r.Prompt)))
					continue
				}
				fmt.Fprintf(out, "  %-16s %s\n", f.Name, styles.Good.Render("idle"))
			}
			if r, ok := running["general"]; ok {
				fmt.Fprintf(out, "  %-16s %s %s\n", "general",
					styles.Warn.Render("running"), styles.Dim.Render(firstLine(r.Prompt)))
			}

			fmt.Fprintf(out, "\n%s %s\n", styles.Header.Render("default engine:"), cfg.DefaultEngine)
			return nil
		},
	}
}
