package launcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/randalmurphal/sessionkit"
)

// Process is a running app-server child with piped standard streams.
type Process struct {
	cmd    *exec.Cmd
	path   string
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	logger *slog.Logger

	waitOnce sync.Once
	waitErr  error
	done     chan struct{}
}

// Spawn starts the server described by cfg. Any failure after resolution is
// reported as sessionkit.ErrSpawnFailed. Nothing is retried.
//
// ctx is only checked before starting; the process outlives it.
func Spawn(ctx context.Context, cfg Config) (*Process, error) {
	cfg = cfg.WithDefaults()
	if err := ctx.Err(); err != nil {
		return nil, sessionkit.NewError("", "spawn", err)
	}

	resolved, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(resolved.Path, cfg.Args...)
	cmd.Env = resolved.Env
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}
	setProcAttr(cmd)

	spawnErr := func(err error) error {
		return sessionkit.NewError("", "spawn", fmt.Errorf("%w: %w", sessionkit.ErrSpawnFailed, err))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, spawnErr(fmt.Errorf("create stdin pipe: %w", err))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, spawnErr(fmt.Errorf("create stdout pipe: %w", err))
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, spawnErr(fmt.Errorf("create stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, spawnErr(fmt.Errorf("start %s: %w", resolved.Path, err))
	}

	logger := cfg.logger()
	logger.Debug("process started",
		slog.String("path", resolved.Path),
		slog.Int("pid", cmd.Process.Pid))

	return &Process{
		cmd:    cmd,
		path:   resolved.Path,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Stdin returns the write end of the child's standard input.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout returns the read end of the child's standard output.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }

// Stderr returns the read end of the child's standard error.
func (p *Process) Stderr() io.ReadCloser { return p.stderr }

// Pid returns the child's process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Path returns the executable the child was started from.
func (p *Process) Path() string { return p.path }

// Kill forcibly terminates the child (its whole process group on unix).
// It is idempotent and safe to call after the child has exited or been reaped.
func (p *Process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := killProcess(p.cmd.Process); err != nil {
		p.logger.Debug("kill failed", slog.Int("pid", p.Pid()), slog.Any("error", err))
		return err
	}
	return nil
}

// Wait reaps the child once and returns its exit error on every call.
// Callers must finish reading Stdout and Stderr before calling Wait.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		close(p.done)
	})
	<-p.done
	return p.waitErr
}

// Done returns a channel closed once the child has been reaped by Wait.
func (p *Process) Done() <-chan struct{} {
	return p.done
}
