package launcher

import "fmt"

// Mode selects how the launcher obtains a running nREPL server.
type Mode string

const (
	// ModeAlwaysStart unconditionally launches the server as a subprocess.
	ModeAlwaysStart Mode = "always-start"
	// ModePreferExisting uses the discovery file's port when present and
	// falls back to launching otherwise.
	ModePreferExisting Mode = "prefer-existing"
	// ModeRequireExisting uses the discovery file's port or fails; it never
	// launches a subprocess.
	ModeRequireExisting Mode = "require-existing"
)

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAlwaysStart, ModePreferExisting, ModeRequireExisting:
		return true
	}
	return false
}

const (
	defaultCommand       = "clojure"
	defaultServerVersion = "1.3.1"
)

// Config holds launcher initialization parameters.
type Config struct {
	Mode          Mode     `json:"mode,omitempty"`           // Server acquisition mode; default always-start.
	Command       string   `json:"command,omitempty"`        // Executable used to launch the server.
	ExtraFlags    []string `json:"extra-flags,omitempty"`    // Forwarded verbatim to the server launch.
	ServerVersion string   `json:"server-version,omitempty"` // nREPL version interpolated into the launch deps.
}

// DefaultConfig returns the default launcher configuration.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeAlwaysStart,
		Command:       defaultCommand,
		ServerVersion: defaultServerVersion,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Mode != "" {
		c.Mode = source.Mode
	}
	if source.Command != "" {
		c.Command = source.Command
	}
	if len(source.ExtraFlags) > 0 {
		c.ExtraFlags = source.ExtraFlags
	}
	if source.ServerVersion != "" {
		c.ServerVersion = source.ServerVersion
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("unrecognized mode %q", c.Mode)
	}
	return nil
}
