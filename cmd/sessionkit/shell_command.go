package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/sessionkit/broker"
	"github.com/randalmurphal/sessionkit/config"
	"github.com/randalmurphal/sessionkit/session"
)

const shellSessionID = "shell"

func newShellCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive JSON-RPC session over stdin/stdout",
		Long: `Read commands from stdin, one per line:

  METHOD [PARAMS_JSON]        send a request; the reply is printed when it arrives
  !notify METHOD [PARAMS_JSON] send a notification
  !reply ID RESULT_JSON        answer a server-initiated request
  !info                        print session info
  !quit                        close the session and exit

Events, replies and errors are printed to stdout as JSON lines. Requests run
concurrently, so replies may arrive out of order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if watch && ctx.configPath == "" {
				return errors.New("--watch requires a configuration file")
			}

			b, closeBroker, err := openBroker(cmd.Context(), cfg, ctx.log())
			if err != nil {
				return err
			}
			defer closeBroker()

			sh := newShell(ctx, cfg, b, cmd.OutOrStdout(), timeout)
			return sh.run(cmd.Context(), cmd.InOrStdin(), watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the configuration file on change and reconnect when launch settings differ")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Maximum time to wait for each reply (0 waits forever)")
	return cmd
}

type shell struct {
	ctx     *commandContext
	broker  broker.Broker
	out     *lineWriter
	logger  *slog.Logger
	timeout time.Duration
	mgr     session.Manager

	mu    sync.Mutex
	cfg   *config.Config
	sess  session.Session
	ended chan error

	calls sync.WaitGroup
	pumps sync.WaitGroup
}

// shellReply is printed for each completed request.
type shellReply struct {
	Type   string          `json:"type"`
	Method string          `json:"method"`
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// shellError reports a command that failed locally.
type shellError struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Error   string `json:"error"`
}

func newShell(ctx *commandContext, cfg *config.Config, b broker.Broker, out io.Writer, timeout time.Duration) *shell {
	sh := &shell{
		ctx:     ctx,
		broker:  b,
		out:     newLineWriter(out),
		logger:  ctx.log(),
		timeout: timeout,
		cfg:     cfg,
		ended:   make(chan error, 1),
	}
	opts := cfg.ManagerOptions(sh.logger)
	opts = append(opts, session.WithDefaultSessionOptions(ctx.sessionOptions(cfg, b)...))
	sh.mgr = session.NewManager(opts...)
	return sh
}

func (s *shell) run(ctx context.Context, in io.Reader, watch bool) error {
	defer func() {
		s.calls.Wait()
		_ = s.mgr.CloseAll()
		s.pumps.Wait()
		s.ctx.flushEvents()
	}()

	s.mu.Lock()
	err := s.connect(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if watch {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		err := config.Watch(wctx, s.ctx.configPath, func(cfg *config.Config, err error) {
			if err != nil {
				s.logger.Warn("config reload failed", slog.Any("error", err))
				return
			}
			s.reload(ctx, cfg)
		})
		if err != nil {
			return err
		}
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-s.ended:
			if err != nil {
				return fmt.Errorf("session ended: %w", err)
			}
			return nil

		case err := <-readErr:
			return err

		case line := <-lines:
			if quit := s.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// connect opens (or replaces) the shell session and starts its event pump.
// Callers hold s.mu.
func (s *shell) connect(ctx context.Context) error {
	sess, err := s.mgr.Open(ctx, shellSessionID)
	if err != nil {
		return err
	}
	s.sess = sess

	s.pumps.Add(1)
	go func() {
		defer s.pumps.Done()
		pumpEvents(s.out, sess.Events())

		s.mu.Lock()
		current := s.sess == sess
		s.mu.Unlock()
		if current {
			select {
			case s.ended <- sess.Err():
			default:
			}
		}
	}()
	return nil
}

// reload applies a changed configuration. Only launch settings require a
// new session; anything else is taken as is.
func (s *shell) reload(ctx context.Context, cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if config.LaunchEqual(s.cfg, cfg) {
		s.cfg = cfg
		s.logger.Info("config reloaded, launch settings unchanged")
		return
	}

	s.logger.Info("config changed, reconnecting", slog.String("session", shellSessionID))
	s.mgr.SetDefaultSessionOptions(s.ctx.sessionOptions(cfg, s.broker)...)
	if err := s.connect(ctx); err != nil {
		s.logger.Error("reconnect failed", slog.Any("error", err))
		s.out.writeJSON(shellError{Type: "error", Command: "reconnect", Error: err.Error()})
		return
	}
	s.cfg = cfg
}

func (s *shell) current() session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// handle executes one input line and reports whether the shell should exit.
func (s *shell) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false
	}

	sess := s.current()
	head, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch head {
	case "!quit", "!exit":
		return true

	case "!info":
		s.out.writeJSON(struct {
			Type string       `json:"type"`
			Info session.Info `json:"info"`
		}{"info", sess.Info()})

	case "!notify":
		method, raw, _ := strings.Cut(rest, " ")
		err = s.notify(ctx, sess, method, raw)

	case "!reply":
		idText, raw, _ := strings.Cut(rest, " ")
		err = s.reply(ctx, sess, idText, raw)

	default:
		if strings.HasPrefix(head, "!") {
			err = fmt.Errorf("unknown command %s", head)
			break
		}
		var params any
		if params, err = parseParams(rest); err == nil {
			s.request(ctx, sess, head, params)
		}
	}

	if err != nil {
		s.out.writeJSON(shellError{Type: "error", Command: line, Error: err.Error()})
	}
	return false
}

func (s *shell) request(ctx context.Context, sess session.Session, method string, params any) {
	s.calls.Add(1)
	go func() {
		defer s.calls.Done()

		rctx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		reply, err := sess.Request(rctx, method, params)
		if err != nil {
			s.out.writeJSON(shellError{Type: "error", Command: method, Error: err.Error()})
			return
		}
		s.out.writeJSON(shellReply{
			Type:   "reply",
			Method: method,
			ID:     reply.ID,
			Result: reply.Result,
			Error:  reply.Error,
		})
	}()
}

func (s *shell) notify(ctx context.Context, sess session.Session, method, raw string) error {
	if method == "" {
		return errors.New("usage: !notify METHOD [PARAMS_JSON]")
	}
	params, err := parseParams(raw)
	if err != nil {
		return err
	}
	return sess.Notify(ctx, method, params)
}

func (s *shell) reply(ctx context.Context, sess session.Session, idText, raw string) error {
	id, err := strconv.ParseUint(idText, 10, 64)
	if err != nil || strings.TrimSpace(raw) == "" {
		return errors.New("usage: !reply ID RESULT_JSON")
	}
	result, err := parseParams(raw)
	if err != nil {
		return err
	}
	return sess.Reply(ctx, id, result)
}
