package sessionkit

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by all sessionkit packages.
var (
	// ErrNotFound indicates the external binary could not be located.
	ErrNotFound = errors.New("binary not found")

	// ErrTimeout indicates a bounded wait (version probe or handshake) expired.
	ErrTimeout = errors.New("timed out")

	// ErrProbeFailed indicates the version probe exited with a non-zero status.
	ErrProbeFailed = errors.New("version probe failed")

	// ErrSpawnFailed indicates the binary exists but could not be started.
	ErrSpawnFailed = errors.New("spawn failed")

	// ErrHandshakeFailed indicates the peer rejected or broke the initialize exchange.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrHandshakeTimeout indicates the peer never answered initialize.
	// It also matches ErrTimeout.
	ErrHandshakeTimeout = fmt.Errorf("handshake %w", ErrTimeout)

	// ErrTransportWrite indicates writing to the child's stdin failed.
	ErrTransportWrite = errors.New("transport write failed")

	// ErrTransportRead indicates reading the child's stdout failed.
	ErrTransportRead = errors.New("transport read failed")

	// ErrCanceled indicates a pending request was dropped before a reply arrived.
	ErrCanceled = errors.New("request canceled")

	// ErrProtocolParse indicates an inbound line was not valid JSON.
	// It is only ever reported through events, never returned from a call.
	ErrProtocolParse = errors.New("protocol parse error")

	// ErrSessionClosed indicates the session no longer accepts writes.
	ErrSessionClosed = errors.New("session closed")

	// ErrStreamClosed indicates the child's stdout reached EOF.
	ErrStreamClosed = errors.New("stream closed")

	// ErrSessionNotFound indicates no session is registered under the given id.
	ErrSessionNotFound = errors.New("session not found")
)

// Error wraps a sessionkit failure with the session and operation involved.
type Error struct {
	Session string // Session identity, empty before one is assigned
	Op      string // Operation that failed ("probe", "spawn", "initialize", "request")
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Session != "" {
		return fmt.Sprintf("session %s: %s: %v", e.Session, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new sessionkit error.
func NewError(session, op string, err error) *Error {
	return &Error{Session: session, Op: op, Err: err}
}

// IsRetryable reports whether opening a session again may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrSpawnFailed)
}

// Remediation returns a user-facing hint for a failure to open a session.
func Remediation(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "CLI not found. Install it and make sure it is on your PATH, or configure an explicit binary path."
	case errors.Is(err, ErrHandshakeTimeout):
		return "The app server did not respond to initialize. Check that it runs in a terminal."
	case errors.Is(err, ErrTimeout):
		return "Timed out while checking the CLI. Make sure `--version` runs in a terminal."
	case errors.Is(err, ErrProbeFailed):
		return "The CLI failed to report its version. Try running it with `--version` in a terminal."
	case errors.Is(err, ErrSpawnFailed):
		return "The CLI is installed but could not be started."
	case errors.Is(err, ErrHandshakeFailed):
		return "The app server rejected the handshake."
	default:
		return err.Error()
	}
}
