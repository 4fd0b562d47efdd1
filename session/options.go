package session

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/sessionkit/codexcontract"
	"github.com/randalmurphal/sessionkit/event"
	"github.com/randalmurphal/sessionkit/launcher"
)

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

// sessionConfig holds session configuration.
type sessionConfig struct {
	id       string
	launcher launcher.Config

	handshakeTimeout time.Duration
	client           ClientInfo

	eventBuffer int
	sinks       []event.Sink

	// stderrGrace is how long stderr may stay open after stdout ends.
	stderrGrace time.Duration

	logger *slog.Logger
}

// defaultConfig returns the default session configuration.
func defaultConfig() sessionConfig {
	return sessionConfig{
		launcher:         launcher.DefaultConfig(),
		handshakeTimeout: 15 * time.Second,
		client: ClientInfo{
			Name:    codexcontract.DefaultClientName,
			Title:   codexcontract.DefaultClientTitle,
			Version: codexcontract.DefaultClientVersion,
		},
		eventBuffer: event.DefaultBuffer,
		stderrGrace: 2 * time.Second,
	}
}

func (c *sessionConfig) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

// WithSessionID sets the session identity used to tag events.
// If not set, a random UUID is generated.
func WithSessionID(id string) SessionOption {
	return func(c *sessionConfig) { c.id = id }
}

// WithLauncherConfig replaces the whole launcher configuration.
func WithLauncherConfig(cfg launcher.Config) SessionOption {
	return func(c *sessionConfig) { c.launcher = cfg }
}

// WithBinary sets an explicit path to the app-server binary.
func WithBinary(path string) SessionOption {
	return func(c *sessionConfig) { c.launcher.Binary = path }
}

// WithArgs sets the arguments the binary is spawned with.
func WithArgs(args ...string) SessionOption {
	return func(c *sessionConfig) { c.launcher.Args = args }
}

// WithWorkDir sets the working directory for the process.
func WithWorkDir(dir string) SessionOption {
	return func(c *sessionConfig) { c.launcher.WorkDir = dir }
}

// WithEnv adds environment variables for the process.
func WithEnv(env map[string]string) SessionOption {
	return func(c *sessionConfig) {
		if c.launcher.Env == nil {
			c.launcher.Env = make(map[string]string)
		}
		for k, v := range env {
			c.launcher.Env[k] = v
		}
	}
}

// WithExtraPaths appends directories to the search path for the default binary.
func WithExtraPaths(dirs ...string) SessionOption {
	return func(c *sessionConfig) { c.launcher.ExtraPaths = append(c.launcher.ExtraPaths, dirs...) }
}

// WithSkipProbe disables the pre-flight --version check.
func WithSkipProbe(skip bool) SessionOption {
	return func(c *sessionConfig) { c.launcher.SkipProbe = skip }
}

// WithProbeTimeout bounds the pre-flight --version check.
func WithProbeTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) { c.launcher.ProbeTimeout = d }
}

// WithHandshakeTimeout bounds the initialize request.
func WithHandshakeTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) { c.handshakeTimeout = d }
}

// WithClientInfo sets the identity sent with initialize.
func WithClientInfo(info ClientInfo) SessionOption {
	return func(c *sessionConfig) { c.client = info }
}

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) SessionOption {
	return func(c *sessionConfig) { c.eventBuffer = n }
}

// WithSink adds a synchronous subscriber. Sinks see every event in order,
// including the ones the Events channel drops.
func WithSink(s event.Sink) SessionOption {
	return func(c *sessionConfig) { c.sinks = append(c.sinks, s) }
}

// WithLogger sets the logger for the session and its launcher.
func WithLogger(l *slog.Logger) SessionOption {
	return func(c *sessionConfig) { c.logger = l }
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

// managerConfig holds manager configuration.
type managerConfig struct {
	maxSessions     int
	sessionTTL      time.Duration
	cleanupInterval time.Duration
	defaultOpts     []SessionOption
	logger          *slog.Logger
}

// defaultManagerConfig returns the default manager configuration.
func defaultManagerConfig() managerConfig {
	return managerConfig{
		maxSessions:     100,
		cleanupInterval: time.Minute,
	}
}

// WithMaxSessions sets the maximum number of concurrent sessions.
func WithMaxSessions(n int) ManagerOption {
	return func(c *managerConfig) { c.maxSessions = n }
}

// WithSessionTTL closes sessions with no traffic for longer than ttl.
// Zero disables idle cleanup.
func WithSessionTTL(ttl time.Duration) ManagerOption {
	return func(c *managerConfig) { c.sessionTTL = ttl }
}

// WithCleanupInterval sets how often idle sessions are checked.
func WithCleanupInterval(d time.Duration) ManagerOption {
	return func(c *managerConfig) { c.cleanupInterval = d }
}

// WithDefaultSessionOptions sets options applied to every new session
// before the per-call options.
func WithDefaultSessionOptions(opts ...SessionOption) ManagerOption {
	return func(c *managerConfig) { c.defaultOpts = opts }
}

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(c *managerConfig) { c.logger = l }
}
