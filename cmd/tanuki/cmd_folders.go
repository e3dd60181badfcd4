package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newFoldersCmd creates the "tanuki folders" subcommand group.
func newFoldersCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Manage served project folders",
	}
	cmd.AddCommand(newFoldersListCmd(flags), newFoldersAddCmd(flags), newFoldersRemoveCmd(flags))
	return cmd
}

func newFoldersListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if len(cfg.Folders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no folders configured; use `tanuki folders add`")
				return nil
			}
			for _, f := range cfg.Folders {
				engine := cfg.DefaultEngine
				if f.Engine != "" {
					engine = f.Engine
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s topic=%-6d engine=%-8s %s\n", f.Name, f.TopicID, engine, f.Path)
			}
			return nil
		},
	}
}

func newFoldersAddCmd(flags *rootFlags) *cobra.Command {
	var topicID int64
	var engineID string
	cmd := &cobra.Command{
		Use:   "add <name> <path>",
		Short: "Add a folder and bind it to a chat topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			f, err := cfg.AddFolder(args[0], args[1], topicID)
			if err != nil {
				return err
			}
			f.Engine = engineID
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (thread %s)\n", f.Name, f.Thread)
			return nil
		},
	}
	cmd.Flags().Int64Var(&topicID, "topic", 0, "chat topic id to bind (0 = unbound)")
	cmd.Flags().StringVar(&engineID, "engine", "", "engine override for this folder")
	return cmd
}

func newFoldersRemoveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if !cfg.RemoveFolder(args[0]) {
				return fmt.Errorf("no folder named %q", args[0])
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}
