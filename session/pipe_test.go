package session

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/sessionkit/event"
)

// pipeConn is an in-memory Conn. The test drives the peer side.
type pipeConn struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	killOnce sync.Once
	killed   chan struct{}
	waits    int
	waitMu   sync.Mutex
}

func newPipeConn() *pipeConn {
	c := &pipeConn{killed: make(chan struct{})}
	c.stdinR, c.stdinW = io.Pipe()
	c.stdoutR, c.stdoutW = io.Pipe()
	c.stderrR, c.stderrW = io.Pipe()
	return c
}

func (c *pipeConn) Stdin() io.WriteCloser { return c.stdinW }
func (c *pipeConn) Stdout() io.ReadCloser { return c.stdoutR }
func (c *pipeConn) Stderr() io.ReadCloser { return c.stderrR }
func (c *pipeConn) Pid() int { return 4242 }

// Kill simulates the process dying: its output streams end and its input
// stops accepting data.
func (c *pipeConn) Kill() error {
	c.killOnce.Do(func() {
		close(c.killed)
		_ = c.stdoutW.Close()
		_ = c.stderrW.Close()
		_ = c.stdinR.Close()
	})
	return nil
}

func (c *pipeConn) Wait() error {
	c.waitMu.Lock()
	c.waits++
	c.waitMu.Unlock()
	<-c.killed
	return nil
}

func (c *pipeConn) isKilled() bool {
	select {
	case <-c.killed:
		return true
	default:
		return false
	}
}

// peer is the fake app-server end of a pipeConn.
type peer struct {
	t    *testing.T
	conn *pipeConn
	in   *bufio.Reader
	mu   sync.Mutex
}

func newPeer(t *testing.T, conn *pipeConn) *peer {
	return &peer{t: t, conn: conn, in: bufio.NewReader(conn.stdinR)}
}

// wireMessage is a decoded line written by the session.
type wireMessage struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	raw    string
	keys   map[string]json.RawMessage
}

func (m wireMessage) has(key string) bool {
	_, ok := m.keys[key]
	return ok
}

// read returns the next line the session wrote.
func (p *peer) read() wireMessage {
	p.t.Helper()
	line, err := p.in.ReadString('\n')
	require.NoError(p.t, err)

	var msg wireMessage
	require.NoError(p.t, json.Unmarshal([]byte(line), &msg))
	require.NoError(p.t, json.Unmarshal([]byte(line), &msg.keys))
	msg.raw = line
	return msg
}

// tryRead is read for use from goroutines; it reports failure instead of
// failing the test.
func (p *peer) tryRead() (wireMessage, bool) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		return wireMessage{}, false
	}
	var msg wireMessage
	if json.Unmarshal([]byte(line), &msg) != nil || json.Unmarshal([]byte(line), &msg.keys) != nil {
		return wireMessage{}, false
	}
	msg.raw = line
	return msg, true
}

// send writes raw text to the session's stdout.
func (p *peer) send(text string) {
	p.t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := io.WriteString(p.conn.stdoutW, text)
	require.NoError(p.t, err)
}

func (p *peer) trySend(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := io.WriteString(p.conn.stdoutW, text)
	return err
}

func (p *peer) stderr(text string) {
	p.t.Helper()
	_, err := io.WriteString(p.conn.stderrW, text)
	require.NoError(p.t, err)
}

// closeStdout simulates the process closing its output.
func (p *peer) closeStdout() {
	_ = p.conn.stdoutW.Close()
	_ = p.conn.stderrW.Close()
}

// startSession wraps a fresh pipeConn in a running session without a
// handshake.
func startSession(t *testing.T, opts ...SessionOption) (*session, *peer) {
	t.Helper()
	conn := newPipeConn()
	cfg := buildConfig(append([]SessionOption{WithSessionID("s1")}, opts...))
	s := newSession(cfg, conn)
	s.start()
	t.Cleanup(func() { _ = s.Close() })
	return s, newPeer(t, conn)
}

// nextEvent waits for the next event on ch.
func nextEvent(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "events channel closed")
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for teardown")
	}
}
