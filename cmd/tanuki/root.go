package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tanuki/internal/version"
	"tanuki/pkg/runlog"
	"tanuki/pkg/workspace"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	dbPath     string
	verbose    bool
}

// newRootCmd creates the root tanuki command with all subcommands attached.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "tanuki",
		Short:         "Chat bridge for coding agents",
		Long:          "tanuki bridges long-running coding agents to a group chat.\nEach project folder gets its own topic; sessions resume across messages.",
		Version:       fmt.Sprintf("tanuki %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", workspace.DefaultPath, "path to the config file")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", runlog.DefaultDBPath(), "path to the run history database")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newInitCmd(flags),
		newStartCmd(flags),
		newFoldersCmd(flags),
		newEnginesCmd(flags),
		newRunsCmd(flags),
		newTokenCmd(flags),
		newStatusCmd(flags),
	)

	return cmd
}

// newLogger builds the process logger: text to stderr, level by -v.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads the workspace config, with a pointer to init on absence.
func loadConfig(flags *rootFlags) (*workspace.Config, error) {
	cfg, err := workspace.Load(flags.configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no config at %s; run `tanuki init` first", flags.configPath)
		}
		return nil, err
	}
	return cfg, nil
}
