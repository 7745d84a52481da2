package bridge

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kennyjwilli/claude-clojure-tools/launcher"
)

// Config holds initialization parameters for the bridge. The recognized keys
// (mode, command, extra-flags, server-version) belong to server acquisition
// and are embedded flat from the launcher configuration.
type Config struct {
	launcher.Config
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{Config: launcher.DefaultConfig()}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Config.Merge(&source.Config)
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
