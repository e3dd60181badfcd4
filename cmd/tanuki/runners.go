package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"tanuki/pkg/engine"
	"tanuki/pkg/engine/claude"
	"tanuki/pkg/engine/codex"
	"tanuki/pkg/engine/command"
	"tanuki/pkg/workspace"
)

// enginesFileName holds operator-defined command engines, next to the config.
const enginesFileName = "engines.yaml"

// buildRegistry registers the built-in engine backends plus any command
// engines defined alongside the config, then applies the config's default.
func buildRegistry(cfg *workspace.Config, configPath string, logger *slog.Logger) (*engine.Registry, error) {
	spawner := engine.ExecSpawner{}
	reg := engine.NewRegistry()
	reg.Register(claude.New(spawner, logger))
	reg.Register(codex.New(spawner, logger))

	defs, err := command.Load(filepath.Join(filepath.Dir(configPath), enginesFileName))
	if err != nil {
		return nil, fmt.Errorf("load command engines: %w", err)
	}
	for _, def := range defs {
		runner, err := command.New(def, spawner, logger)
		if err != nil {
			return nil, fmt.Errorf("command engine %q: %w", def.ID, err)
		}
		reg.Register(runner)
	}

	if cfg.DefaultEngine != "" {
		if err := reg.SetDefault(cfg.DefaultEngine); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
