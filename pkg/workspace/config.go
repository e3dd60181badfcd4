// Package workspace owns the operator-editable configuration: which project
// folders the bridge serves, how they map to chat topics and conversation
// threads, and per-deployment tuning. The config lives in a single TOML file
// so operators can edit it by hand while the bridge is running.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"tanuki/pkg/event"
)

// DefaultPath is where the config file lives unless overridden.
const DefaultPath = "tanuki.toml"

// Folder maps one project directory to one chat topic and one conversation
// thread. Thread is a generated identifier, stable for the folder's lifetime
// and never reused after removal.
type Folder struct {
	Name    string `toml:"name"`
	Path    string `toml:"path"`
	TopicID int64  `toml:"topic_id"`
	Thread  string `toml:"thread"`
	Engine  string `toml:"engine,omitempty"`
}

// Telegram holds transport credentials and routing.
type Telegram struct {
	Token   string `toml:"token"`
	ChatID  int64  `toml:"chat_id"`
	BotName string `toml:"bot_name,omitempty"`
}

// Ralph tunes the iterative loop feature.
type Ralph struct {
	Enabled       bool `toml:"enabled"`
	MaxIterations int  `toml:"max_iterations"`
}

// Config is the whole file.
type Config struct {
	DefaultEngine string                    `toml:"default_engine"`
	DebounceMs    int                       `toml:"debounce_ms"`
	Telegram      Telegram                  `toml:"telegram"`
	Ralph         Ralph                     `toml:"ralph"`
	Folders       []Folder                  `toml:"folders"`
	Engines       map[string]map[string]any `toml:"engines,omitempty"`

	path string
}

// Default returns a config with sensible defaults and no folders.
func Default() *Config {
	return &Config{
		DefaultEngine: "claude",
		DebounceMs:    1500,
		Ralph:         Ralph{Enabled: true, MaxIterations: 3},
	}
}

// Load reads the config at path. A missing file is an error; use Default and
// Save to bootstrap one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.path = path
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config back to the path it was loaded from, or to
// DefaultPath for a fresh config. The write is atomic so a concurrent watcher
// reload never sees a half-written file.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = DefaultPath
		c.path = path
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // config is not secret material beyond the token the operator put there
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveTo writes the config to an explicit path and pins future saves to it.
func (c *Config) SaveTo(path string) error {
	c.path = path
	return c.Save()
}

// Path returns the file this config was loaded from or saved to.
func (c *Config) Path() string {
	if c.path == "" {
		return DefaultPath
	}
	return c.path
}

// Debounce returns the message coalescing window.
func (c *Config) Debounce() time.Duration {
	if c.DebounceMs <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// EngineSettings returns the raw settings table for an engine, or nil.
func (c *Config) EngineSettings(engine string) map[string]any {
	return c.Engines[engine]
}

func (c *Config) validate() error {
	seenThread := make(map[string]string)
	seenTopic := make(map[int64]string)
	for i, f := range c.Folders {
		if f.Name == "" {
			return fmt.Errorf("folder %d: missing name", i)
		}
		if f.Path == "" {
			return fmt.Errorf("folder %q: missing path", f.Name)
		}
		if !filepath.IsAbs(f.Path) {
			return fmt.Errorf("folder %q: path %q is not absolute", f.Name, f.Path)
		}
		if f.Thread == "" {
			return fmt.Errorf("folder %q: missing thread id", f.Name)
		}
		if other, dup := seenThread[f.Thread]; dup {
			return fmt.Errorf("folders %q and %q share thread %s", other, f.Name, f.Thread)
		}
		seenThread[f.Thread] = f.Name
		if f.TopicID != 0 {
			if other, dup := seenTopic[f.TopicID]; dup {
				return fmt.Errorf("folders %q and %q share topic %d", other, f.Name, f.TopicID)
			}
			seenTopic[f.TopicID] = f.Name
		}
	}
	return nil
}

// ThreadID converts the folder's stored thread to the event-model type.
func (f *Folder) ThreadID() event.ThreadID { return event.ThreadID(f.Thread) }
