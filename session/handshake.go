package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/sessionkit"
	"github.com/randalmurphal/sessionkit/codexcontract"
	"github.com/randalmurphal/sessionkit/event"
	"github.com/randalmurphal/sessionkit/launcher"
)

// Open probes, spawns and handshakes a new app-server session.
// The returned session is ready. On failure nothing is left running.
func Open(ctx context.Context, opts ...SessionOption) (Session, error) {
	s, err := open(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Attach runs the handshake over an already running peer. On failure conn
// is killed and reaped before Attach returns.
func Attach(ctx context.Context, conn Conn, opts ...SessionOption) (Session, error) {
	cfg := buildConfig(opts)
	s, err := attach(ctx, cfg, conn, "", "")
	if err != nil {
		return nil, err
	}
	return s, nil
}

func buildConfig(opts []SessionOption) sessionConfig {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}
	if cfg.launcher.Logger == nil {
		cfg.launcher.Logger = cfg.log()
	}
	return cfg
}

func open(ctx context.Context, opts ...SessionOption) (*session, error) {
	cfg := buildConfig(opts)
	logger := cfg.log().With(slog.String("session", cfg.id))

	if err := cfg.launcher.Validate(); err != nil {
		return nil, sessionkit.NewError(cfg.id, "configure", err)
	}

	var version launcher.Version
	if !cfg.launcher.SkipProbe {
		v, err := launcher.Probe(ctx, cfg.launcher)
		if err != nil {
			return nil, withSession(cfg.id, err)
		}
		version = v
	}

	proc, err := launcher.Spawn(ctx, cfg.launcher)
	if err != nil {
		return nil, withSession(cfg.id, err)
	}
	logger.Debug("spawned app-server", slog.Int("pid", proc.Pid()), slog.String("path", proc.Path()))

	return attach(ctx, cfg, proc, proc.Path(), version.Raw)
}

func attach(ctx context.Context, cfg sessionConfig, conn Conn, binary, version string) (*session, error) {
	s := newSession(cfg, conn)
	s.binary = binary
	s.version = version
	s.start()

	if err := s.handshake(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// handshake sends initialize, then initialized, under the handshake timeout.
// When the timeout fires the process is killed, which also ends a write the
// peer never reads.
func (s *session) handshake(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, s.config.handshakeTimeout)
	defer cancel()
	stop := context.AfterFunc(hctx, func() {
		s.shutdown(context.Cause(hctx))
	})
	defer stop()

	reply, err := s.Request(hctx, codexcontract.MethodInitialize, initializeParams{ClientInfo: s.config.client})
	if err == nil && hctx.Err() != nil {
		err = hctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(hctx.Err(), context.DeadlineExceeded) {
			s.logger.Warn("initialize timed out", slog.Duration("timeout", s.config.handshakeTimeout))
			return sessionkit.NewError(s.id, codexcontract.MethodInitialize,
				fmt.Errorf("%w after %s", sessionkit.ErrHandshakeTimeout, s.config.handshakeTimeout))
		}
		return sessionkit.NewError(s.id, codexcontract.MethodInitialize,
			fmt.Errorf("%w: %w", sessionkit.ErrHandshakeFailed, unwrapOp(err)))
	}
	if rpcErr := reply.Err(); rpcErr != nil {
		return sessionkit.NewError(s.id, codexcontract.MethodInitialize,
			fmt.Errorf("%w: %w", sessionkit.ErrHandshakeFailed, rpcErr))
	}

	if err := s.Notify(hctx, codexcontract.MethodInitialized, nil); err != nil {
		return sessionkit.NewError(s.id, codexcontract.MethodInitialized,
			fmt.Errorf("%w: %w", sessionkit.ErrHandshakeFailed, unwrapOp(err)))
	}

	if !stop() {
		return sessionkit.NewError(s.id, codexcontract.MethodInitialized,
			fmt.Errorf("%w after %s", sessionkit.ErrHandshakeTimeout, s.config.handshakeTimeout))
	}

	s.status.Store(StatusReady)
	s.emit(event.Connected(s.id))
	s.logger.Info("session ready", slog.Int("pid", s.conn.Pid()))
	return nil
}

// withSession tags a launcher error with the session id.
func withSession(id string, err error) error {
	var skErr *sessionkit.Error
	if errors.As(err, &skErr) && skErr.Session == "" {
		return sessionkit.NewError(id, skErr.Op, skErr.Err)
	}
	return err
}

// unwrapOp strips one *sessionkit.Error layer so re-wrapping does not
// repeat the session and method.
func unwrapOp(err error) error {
	var skErr *sessionkit.Error
	if errors.As(err, &skErr) {
		return skErr.Err
	}
	return err
}
