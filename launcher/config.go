package launcher

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/sessionkit/codexcontract"
)

// Config describes how to start the app-server process.
type Config struct {
	// Binary is an explicit executable path. Blank means the default
	// binary name resolved on the augmented PATH.
	Binary string `json:"binary" yaml:"binary"`

	// Args are passed to the binary when spawning the server.
	// Default: ["app-server"]
	Args []string `json:"args" yaml:"args"`

	// WorkDir is the working directory of the server process.
	WorkDir string `json:"work_dir" yaml:"work_dir"`

	// Env provides additional environment variables for the child.
	Env map[string]string `json:"env" yaml:"env"`

	// ExtraPaths are appended to the search path after the built-in
	// installation directories.
	ExtraPaths []string `json:"extra_paths" yaml:"extra_paths"`

	// SkipProbe disables the pre-flight version check.
	SkipProbe bool `json:"skip_probe" yaml:"skip_probe"`

	// ProbeTimeout bounds the version check.
	// Default: 5 seconds.
	ProbeTimeout time.Duration `json:"probe_timeout" yaml:"probe_timeout"`

	// Logger receives launcher diagnostics. Default: slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Args:         []string{codexcontract.CommandAppServer},
		ProbeTimeout: 5 * time.Second,
	}
}

// WithDefaults returns a copy of the config with defaults applied for unset fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Args == nil {
		c.Args = defaults.Args
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = defaults.ProbeTimeout
	}
	return c
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ProbeTimeout < 0 {
		return fmt.Errorf("probe_timeout must be >= 0")
	}
	for k := range c.Env {
		if k == "" {
			return fmt.Errorf("env: empty variable name")
		}
	}
	return nil
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
