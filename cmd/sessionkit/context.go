package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/randalmurphal/sessionkit/broker"
	"github.com/randalmurphal/sessionkit/broker/memory"
	"github.com/randalmurphal/sessionkit/broker/redis"
	"github.com/randalmurphal/sessionkit/config"
	"github.com/randalmurphal/sessionkit/session"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	stderr       io.Writer

	configOnce sync.Once
	configPath string
	config     *config.Config
	logger     *slog.Logger
	configErr  error

	sinksMu sync.Mutex
	sinks   []*broker.Sink
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		stderr:       os.Stderr,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var explicit string
		if c.configFlag != nil {
			explicit = strings.TrimSpace(*c.configFlag)
		}
		c.configPath = config.Find(explicit)

		cfg, err := config.Load(c.configPath)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			if _, err := config.ParseLevel(*c.logLevelFlag); err != nil {
				c.configErr = err
				return
			}
			cfg.Log.Level = *c.logLevelFlag
		}

		c.config = cfg
		c.logger = cfg.Log.NewLogger(c.stderr)
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

// sessionOptions builds the options for sessions opened under cfg,
// publishing events to b when it is non-nil.
func (c *commandContext) sessionOptions(cfg *config.Config, b broker.Broker) []session.SessionOption {
	opts := cfg.SessionOptions()
	opts = append(opts, session.WithLogger(c.log()))
	if b != nil {
		sink := broker.NewSink(b,
			broker.WithAllNamespace(cfg.Broker.AllNamespace),
			broker.WithSinkLogger(c.log()),
		)
		c.sinksMu.Lock()
		c.sinks = append(c.sinks, sink)
		c.sinksMu.Unlock()
		opts = append(opts, session.WithSink(sink))
	}
	return opts
}

// flushEvents publishes every queued event and stops the broker sinks
// created by sessionOptions. Call it after the sessions are closed.
func (c *commandContext) flushEvents() {
	c.sinksMu.Lock()
	sinks := c.sinks
	c.sinks = nil
	c.sinksMu.Unlock()

	for _, sink := range sinks {
		_ = sink.Close()
	}
}

// openBroker returns the configured event broker, or nil when publishing
// is disabled. The returned func releases it.
func openBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (broker.Broker, func(), error) {
	switch cfg.Broker.Kind {
	case config.BrokerMemory:
		return memory.New(), func() {}, nil

	case config.BrokerRedis:
		b := redis.New(redis.Config{
			Addr:      cfg.Broker.RedisAddr,
			KeyPrefix: cfg.Broker.KeyPrefix,
		})
		if err := b.Ping(ctx); err != nil {
			_ = b.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Broker.RedisAddr, err)
		}
		logger.Debug("publishing events to redis",
			slog.String("addr", cfg.Broker.RedisAddr),
			slog.String("prefix", cfg.Broker.KeyPrefix))
		return b, func() { _ = b.Close() }, nil

	default:
		return nil, func() {}, nil
	}
}
