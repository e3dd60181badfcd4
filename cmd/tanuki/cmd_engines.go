package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newEnginesCmd creates the "tanuki engines" subcommand.
func newEnginesCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List available engine backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg, flags.configPath, newLogger(flags.verbose))
			if err != nil {
				return err
			}
			for _, id := range reg.IDs() {
				marker := ""
				if id == cfg.DefaultEngine {
					marker = " (default)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", id, marker)
			}
			return nil
		},
	}
}
