package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tanuki/pkg/event"
	"tanuki/pkg/router"
	"tanuki/pkg/runlog"
)

// newTokenCmd creates the "tanuki token" subcommand.
func newTokenCmd(flags *rootFlags) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "token [folder]",
		Short: "Show or clear a folder's stored session token",
		Long:  "Without a folder argument it uses the general thread.\nThe printed scoped form can be pasted into any chat message to resume.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			thread := event.General
			if len(args) == 1 {
				cfg, err := loadConfig(flags)
				if err != nil {
					return err
				}
				f := cfg.FolderByName(args[0])
				if f == nil {
					return fmt.Errorf("no folder named %q", args[0])
				}
				thread = f.ThreadID()
			}

			store, err := runlog.Open(flags.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if clear {
				if err := store.ClearToken(cmd.Context(), thread); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "token cleared")
				return nil
			}

			token, err := store.LastToken(cmd.Context(), thread)
			if err != nil {
				return err
			}
			if token == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no stored session")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "engine: %s\nscoped: %s\n", token.Engine, router.EncodeScoped(*token))
			return nil
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "forget the stored session")
	return cmd
}
