package session

import (
	"io"
	"time"
)

// Status represents the current state of a session.
type Status string

// Session status constants.
const (
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusClosing  Status = "closing"
	StatusClosed   Status = "closed"
)

// Info is a snapshot of session metadata.
type Info struct {
	ID            string    `json:"id"`
	Status        Status    `json:"status"`
	Pid           int       `json:"pid"`
	Binary        string    `json:"binary,omitempty"`
	Version       string    `json:"version,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	Pending       int       `json:"pending"`
	DroppedEvents uint64    `json:"dropped_events"`
}

// ClientInfo identifies this client in the initialize request.
type ClientInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Version string `json:"version"`
}

// initializeParams is the payload of the initialize request.
type initializeParams struct {
	ClientInfo ClientInfo `json:"clientInfo"`
}

// Conn is the running peer a session talks to. *launcher.Process
// implements it.
type Conn interface {
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	Pid() int

	// Kill must be idempotent and safe after the peer has exited.
	Kill() error

	// Wait is called once, after Stdout and Stderr have been drained.
	Wait() error
}
