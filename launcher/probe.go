package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/randalmurphal/sessionkit"
	"github.com/randalmurphal/sessionkit/codexcontract"
	"github.com/randalmurphal/sessionkit/truncate"
)

// probeWaitDelay bounds how long Probe waits for output pipes after the
// probe process has been killed.
const probeWaitDelay = time.Second

// Version is the result of a successful probe.
type Version struct {
	// Path is the resolved executable.
	Path string

	// Raw is the trimmed stdout of "--version". It may be empty.
	Raw string

	// Parsed is set when Raw contains a semantic version.
	Parsed *codexcontract.CLIVersion
}

// Probe runs the binary with --version under cfg.ProbeTimeout.
func Probe(ctx context.Context, cfg Config) (Version, error) {
	cfg = cfg.WithDefaults()
	logger := cfg.logger()

	resolved, err := Resolve(cfg)
	if err != nil {
		return Version{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, resolved.Path, codexcontract.FlagVersion)
	cmd.Env = resolved.Env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = probeWaitDelay
	setProcAttr(cmd)
	cmd.Cancel = func() error { return killProcess(cmd.Process) }

	runErr := cmd.Run()

	switch {
	case runErr == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Version{}, sessionkit.NewError("", "probe",
			fmt.Errorf("%w: %s %s did not exit within %s", sessionkit.ErrTimeout, resolved.Path, codexcontract.FlagVersion, cfg.ProbeTimeout))
	case ctx.Err() != nil:
		return Version{}, sessionkit.NewError("", "probe", ctx.Err())
	case isNotFound(runErr):
		return Version{}, sessionkit.NewError("", "probe",
			fmt.Errorf("%w: %s: %v", sessionkit.ErrNotFound, resolved.Path, runErr))
	default:
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Version{}, sessionkit.NewError("", "probe",
				fmt.Errorf("%w: %v", sessionkit.ErrProbeFailed, runErr))
		}
		detail := failureDetail(stderr.String(), stdout.String())
		if detail == "" {
			detail = exitErr.Error()
		}
		return Version{}, sessionkit.NewError("", "probe",
			fmt.Errorf("%w: %s", sessionkit.ErrProbeFailed, detail))
	}

	v := Version{Path: resolved.Path, Raw: strings.TrimSpace(stdout.String())}
	if parsed, err := codexcontract.ParseVersion(v.Raw); err == nil {
		v.Parsed = parsed
		parsed.WarnIfUntested(logger)
	}

	logger.Debug("probe succeeded",
		slog.String("path", v.Path),
		slog.String("version", v.Raw))
	return v, nil
}

// maxFailureDetail bounds the output quoted in a probe error.
const maxFailureDetail = 2000

// failureDetail returns the tail of trimmed stderr, falling back to
// trimmed stdout.
func failureDetail(stderr, stdout string) string {
	s := strings.TrimSpace(stderr)
	if s == "" {
		s = strings.TrimSpace(stdout)
	}
	return truncate.Tail(s, maxFailureDetail)
}
