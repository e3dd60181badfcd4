package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tanuki/pkg/bridge"
	"tanuki/pkg/runlog"
	"tanuki/pkg/transport/telegram"
	"tanuki/pkg/workspace"
)

// newStartCmd creates the "tanuki start" subcommand.
func newStartCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the bridge",
		Long:  "Connects to the chat platform and serves configured folders\nuntil interrupted. The config file is watched and hot-reloaded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags.verbose)

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
				return fmt.Errorf("telegram.token and telegram.chat_id must be set in %s", flags.configPath)
			}

			reg, err := buildRegistry(cfg, flags.configPath, logger)
			if err != nil {
				return err
			}

			store, err := runlog.Open(flags.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			client := telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
			b := bridge.New(cfg, client, reg, store, logger)

			watcher, err := workspace.Watch(flags.configPath, logger, b.SetConfig)
			if err != nil {
				logger.Warn("config watch unavailable", "error", err)
			} else {
				defer watcher.Close()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("bridge starting",
				"config", flags.configPath,
				"folders", len(cfg.Folders),
				"engines", reg.IDs(),
				"default", cfg.DefaultEngine)
			if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("bridge stopped")
			return nil
		},
	}
}
