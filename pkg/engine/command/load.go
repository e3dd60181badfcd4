package command

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the engines.yaml document shape.
type File struct {
	Engines []Definition `yaml:"engines"`
}

// Load reads command engine definitions from a YAML file. A missing file is
// not an error: it returns no definitions.
func Load(path string) ([]Definition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from workspace config
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, def := range f.Engines {
		if def.ID == "" {
			return nil, fmt.Errorf("%s: engine %d missing id", path, i)
		}
	}
	return f.Engines, nil
}
