package config

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/randalmurphal/sessionkit/codexcontract"
	"github.com/randalmurphal/sessionkit/event"
	"github.com/randalmurphal/sessionkit/launcher"
	"github.com/randalmurphal/sessionkit/session"
)

// Broker kinds.
const (
	BrokerNone   = "none"
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

// Config holds every setting sessionkit reads from files and the
// environment. Zero values use the defaults noted on each field.
type Config struct {
	// --- Launch ---

	// Binary is an explicit executable path. Blank resolves the default
	// binary on the augmented PATH.
	Binary string `toml:"binary" yaml:"binary" json:"binary" env:"SESSIONKIT_BINARY"`

	// Args are passed to the binary. Default: ["app-server"]
	Args []string `toml:"args" yaml:"args" json:"args" env:"SESSIONKIT_ARGS"`

	// WorkDir is the server's working directory.
	WorkDir string `toml:"work_dir" yaml:"work_dir" json:"work_dir" env:"SESSIONKIT_WORK_DIR"`

	// Env holds extra environment variables for the server.
	Env map[string]string `toml:"env" yaml:"env" json:"env"`

	// ExtraPaths are searched after the built-in installation directories.
	ExtraPaths []string `toml:"extra_paths" yaml:"extra_paths" json:"extra_paths" env:"SESSIONKIT_EXTRA_PATHS"`

	// SkipProbe disables the version check before spawning.
	SkipProbe bool `toml:"skip_probe" yaml:"skip_probe" json:"skip_probe" env:"SESSIONKIT_SKIP_PROBE"`

	// ProbeTimeout bounds the version check. Default: 5s
	ProbeTimeout Duration `toml:"probe_timeout" yaml:"probe_timeout" json:"probe_timeout" env:"SESSIONKIT_PROBE_TIMEOUT"`

	// --- Session ---

	// HandshakeTimeout bounds the initialize request. Default: 15s
	HandshakeTimeout Duration `toml:"handshake_timeout" yaml:"handshake_timeout" json:"handshake_timeout" env:"SESSIONKIT_HANDSHAKE_TIMEOUT"`

	// EventBuffer is the capacity of each session's event channel.
	// Default: 256
	EventBuffer int `toml:"event_buffer" yaml:"event_buffer" json:"event_buffer" env:"SESSIONKIT_EVENT_BUFFER"`

	// Client is sent in the initialize request.
	Client ClientConfig `toml:"client" yaml:"client" json:"client"`

	// --- Manager ---

	// MaxSessions caps concurrently open sessions. Default: 100
	MaxSessions int `toml:"max_sessions" yaml:"max_sessions" json:"max_sessions" env:"SESSIONKIT_MAX_SESSIONS"`

	// SessionTTL closes sessions idle for longer. 0 disables expiry.
	SessionTTL Duration `toml:"session_ttl" yaml:"session_ttl" json:"session_ttl" env:"SESSIONKIT_SESSION_TTL"`

	// --- Outputs ---

	Broker BrokerConfig `toml:"broker" yaml:"broker" json:"broker"`
	Log    LogConfig    `toml:"log" yaml:"log" json:"log"`
}

// ClientConfig identifies this client to the server.
type ClientConfig struct {
	Name    string `toml:"name" yaml:"name" json:"name" env:"SESSIONKIT_CLIENT_NAME"`
	Title   string `toml:"title" yaml:"title" json:"title" env:"SESSIONKIT_CLIENT_TITLE"`
	Version string `toml:"version" yaml:"version" json:"version" env:"SESSIONKIT_CLIENT_VERSION"`
}

// BrokerConfig selects where session events are published besides the
// in-process channel.
type BrokerConfig struct {
	// Kind is one of "none", "memory" or "redis". Default: none
	Kind string `toml:"kind" yaml:"kind" json:"kind" env:"SESSIONKIT_BROKER" jsonschema:"enum=none,enum=memory,enum=redis"`

	// RedisAddr is used when Kind is redis. Default: localhost:6379
	RedisAddr string `toml:"redis_addr" yaml:"redis_addr" json:"redis_addr" env:"SESSIONKIT_REDIS_ADDR"`

	// KeyPrefix is prepended to Redis stream keys.
	// Default: "sessionkit:events:"
	KeyPrefix string `toml:"key_prefix" yaml:"key_prefix" json:"key_prefix" env:"SESSIONKIT_BROKER_KEY_PREFIX"`

	// AllNamespace also receives every session's events. Blank disables it.
	AllNamespace string `toml:"all_namespace" yaml:"all_namespace" json:"all_namespace" env:"SESSIONKIT_BROKER_ALL_NAMESPACE"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `toml:"level" yaml:"level" json:"level" env:"SESSIONKIT_LOG_LEVEL" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`

	// Format is text or json. Default: text
	Format string `toml:"format" yaml:"format" json:"format" env:"SESSIONKIT_LOG_FORMAT" jsonschema:"enum=text,enum=json"`
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{
		Args:             []string{codexcontract.CommandAppServer},
		ProbeTimeout:     Duration(5 * time.Second),
		HandshakeTimeout: Duration(15 * time.Second),
		EventBuffer:      event.DefaultBuffer,
		Client: ClientConfig{
			Name:    codexcontract.DefaultClientName,
			Title:   codexcontract.DefaultClientTitle,
			Version: codexcontract.DefaultClientVersion,
		},
		MaxSessions: 100,
		Broker: BrokerConfig{
			Kind:      BrokerNone,
			RedisAddr: "localhost:6379",
			KeyPrefix: "sessionkit:events:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WithDefaults returns a copy of c with defaults applied to unset fields.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()

	if c.Args == nil {
		c.Args = d.Args
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.Client.Name == "" {
		c.Client.Name = d.Client.Name
	}
	if c.Client.Title == "" {
		c.Client.Title = d.Client.Title
	}
	if c.Client.Version == "" {
		c.Client.Version = d.Client.Version
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = d.MaxSessions
	}
	if c.Broker.Kind == "" {
		c.Broker.Kind = d.Broker.Kind
	}
	if c.Broker.RedisAddr == "" {
		c.Broker.RedisAddr = d.Broker.RedisAddr
	}
	if c.Broker.KeyPrefix == "" {
		c.Broker.KeyPrefix = d.Broker.KeyPrefix
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	return c
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ProbeTimeout < 0 {
		return fmt.Errorf("probe_timeout must be >= 0, got %v", c.ProbeTimeout)
	}
	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake_timeout must be >= 0, got %v", c.HandshakeTimeout)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session_ttl must be >= 0, got %v", c.SessionTTL)
	}
	if c.EventBuffer < 0 {
		return fmt.Errorf("event_buffer must be >= 0, got %d", c.EventBuffer)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max_sessions must be >= 0, got %d", c.MaxSessions)
	}

	switch c.Broker.Kind {
	case "", BrokerNone, BrokerMemory, BrokerRedis:
	default:
		return fmt.Errorf("invalid broker.kind: %q (must be none, memory, or redis)", c.Broker.Kind)
	}

	if c.Log.Level != "" {
		if _, err := ParseLevel(c.Log.Level); err != nil {
			return err
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log.format: %q (must be text or json)", c.Log.Format)
	}

	lc := c.LauncherConfig()
	return lc.Validate()
}

// LauncherConfig returns the launch settings as a launcher.Config.
func (c *Config) LauncherConfig() launcher.Config {
	return launcher.Config{
		Binary:       c.Binary,
		Args:         c.Args,
		WorkDir:      c.WorkDir,
		Env:          c.Env,
		ExtraPaths:   c.ExtraPaths,
		SkipProbe:    c.SkipProbe,
		ProbeTimeout: c.ProbeTimeout.Std(),
	}
}

// SessionOptions converts the config to session options.
func (c *Config) SessionOptions() []session.SessionOption {
	opts := make([]session.SessionOption, 0, 4)

	opts = append(opts, session.WithLauncherConfig(c.LauncherConfig()))
	if c.HandshakeTimeout > 0 {
		opts = append(opts, session.WithHandshakeTimeout(c.HandshakeTimeout.Std()))
	}
	if c.EventBuffer > 0 {
		opts = append(opts, session.WithEventBuffer(c.EventBuffer))
	}
	if c.Client != (ClientConfig{}) {
		opts = append(opts, session.WithClientInfo(session.ClientInfo{
			Name:    c.Client.Name,
			Title:   c.Client.Title,
			Version: c.Client.Version,
		}))
	}
	return opts
}

// ManagerOptions converts the config to manager options. logger may be nil.
func (c *Config) ManagerOptions(logger *slog.Logger) []session.ManagerOption {
	opts := []session.ManagerOption{
		session.WithDefaultSessionOptions(c.SessionOptions()...),
	}
	if c.MaxSessions > 0 {
		opts = append(opts, session.WithMaxSessions(c.MaxSessions))
	}
	if c.SessionTTL > 0 {
		opts = append(opts, session.WithSessionTTL(c.SessionTTL.Std()))
	}
	if logger != nil {
		opts = append(opts, session.WithManagerLogger(logger))
	}
	return opts
}

// LaunchEqual reports whether a and b start the server the same way.
// Changes to anything else can be applied without reconnecting.
func LaunchEqual(a, b *Config) bool {
	if a.Binary != b.Binary || a.WorkDir != b.WorkDir || a.SkipProbe != b.SkipProbe {
		return false
	}
	if a.HandshakeTimeout != b.HandshakeTimeout || a.Client != b.Client {
		return false
	}
	return slices.Equal(a.Args, b.Args) &&
		slices.Equal(a.ExtraPaths, b.ExtraPaths) &&
		maps.Equal(a.Env, b.Env)
}
