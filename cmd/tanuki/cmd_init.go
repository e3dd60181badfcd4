package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tanuki/pkg/workspace"
)

// newInitCmd creates the "tanuki init" subcommand.
func newInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long:  "Creates a config with defaults at the --config path.\nEdit it to add your bot token, group chat id, and folders.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(flags.configPath); err == nil {
				return fmt.Errorf("config already exists at %s", flags.configPath)
			}
			cfg := workspace.Default()
			if err := cfg.SaveTo(flags.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", flags.configPath)
			fmt.Fprintln(cmd.OutOrStdout(), "next: set telegram.token and telegram.chat_id, then `tanuki folders add`")
			return nil
		},
	}
}
