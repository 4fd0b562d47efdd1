package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/sessionkit"
	"github.com/randalmurphal/sessionkit/event"
	"github.com/randalmurphal/sessionkit/jsonrpc"
)

func TestAttach_Handshake(t *testing.T) {
	conn := newPipeConn()
	p := newPeer(t, conn)

	seen := make(chan []wireMessage, 1)
	go func() {
		initMsg, ok := p.tryRead()
		if !ok {
			return
		}
		if p.trySend(`{"id":1,"result":{"ok":true}}`+"\n") != nil {
			return
		}
		initialized, ok := p.tryRead()
		if !ok {
			return
		}
		seen <- []wireMessage{initMsg, initialized}
	}()

	sess, err := Attach(context.Background(), conn,
		WithSessionID("ws-1"),
		WithClientInfo(ClientInfo{Name: "codex_monitor", Title: "CodexMonitor", Version: "0.1.0"}),
	)
	require.NoError(t, err)
	defer sess.Close()

	msgs := <-seen
	assert.JSONEq(t,
		`{"id":1,"method":"initialize","params":{"clientInfo":{"name":"codex_monitor","title":"CodexMonitor","version":"0.1.0"}}}`,
		msgs[0].raw)
	assert.JSONEq(t, `{"method":"initialized"}`, msgs[1].raw)

	assert.Equal(t, StatusReady, sess.Status())
	assert.Equal(t, "ws-1", sess.ID())

	e := nextEvent(t, sess.Events())
	assert.Equal(t, event.KindDiagnostic, e.Kind)
	assert.JSONEq(t, `{"method":"codex/connected","params":{"sessionId":"ws-1"}}`, string(e.Message))
}

func TestAttach_DefaultClientInfoAndGeneratedID(t *testing.T) {
	conn := newPipeConn()
	p := newPeer(t, conn)

	initParams := make(chan string, 1)
	go func() {
		msg, ok := p.tryRead()
		if !ok {
			return
		}
		initParams <- string(msg.Params)
		_ = p.trySend(`{"id":1,"result":{}}` + "\n")
		_, _ = p.tryRead()
	}()

	sess, err := Attach(context.Background(), conn)
	require.NoError(t, err)
	defer sess.Close()

	assert.JSONEq(t, `{"clientInfo":{"name":"sessionkit","title":"sessionkit","version":"0.1.0"}}`, <-initParams)
	assert.Len(t, sess.ID(), 36, "uuid")
}

func TestAttach_HandshakeTimeout(t *testing.T) {
	conn := newPipeConn()
	p := newPeer(t, conn)
	go func() { _, _ = p.tryRead() }() // read initialize, never answer

	start := time.Now()
	sess, err := Attach(context.Background(), conn, WithHandshakeTimeout(100*time.Millisecond))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, sess)
	assert.True(t, errors.Is(err, sessionkit.ErrHandshakeTimeout), "got %v", err)
	assert.True(t, errors.Is(err, sessionkit.ErrTimeout))
	assert.False(t, errors.Is(err, sessionkit.ErrHandshakeFailed))
	assert.Less(t, elapsed, 2*time.Second)
	assert.True(t, conn.isKilled(), "process is killed on handshake timeout")
	assert.Contains(t, sessionkit.Remediation(err), "did not respond to initialize")
}

func TestAttach_HandshakeTimeoutWhenPeerNeverReads(t *testing.T) {
	conn := newPipeConn()

	start := time.Now()
	_, err := Attach(context.Background(), conn, WithHandshakeTimeout(100*time.Millisecond))

	require.Error(t, err)
	assert.True(t, errors.Is(err, sessionkit.ErrTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, conn.isKilled())
}

func TestAttach_HandshakeRejected(t *testing.T) {
	conn := newPipeConn()
	p := newPeer(t, conn)
	go func() {
		if _, ok := p.tryRead(); ok {
			_ = p.trySend(`{"id":1,"error":{"code":-32600,"message":"unsupported client"}}` + "\n")
		}
	}()

	_, err := Attach(context.Background(), conn, WithSessionID("ws-2"))
	require.Error(t, err)

	assert.True(t, errors.Is(err, sessionkit.ErrHandshakeFailed), "got %v", err)
	assert.False(t, errors.Is(err, sessionkit.ErrTimeout))
	var rpcErr *jsonrpc.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "unsupported client", rpcErr.Message)

	var skErr *sessionkit.Error
	require.True(t, errors.As(err, &skErr))
	assert.Equal(t, "ws-2", skErr.Session)
	assert.Equal(t, "initialize", skErr.Op)

	assert.True(t, conn.isKilled())
	assert.Equal(t, "The app server rejected the handshake.", sessionkit.Remediation(err))
}

func TestAttach_StreamClosedDuringHandshake(t *testing.T) {
	conn := newPipeConn()
	p := newPeer(t, conn)
	go func() {
		if _, ok := p.tryRead(); ok {
			p.closeStdout()
		}
	}()

	_, err := Attach(context.Background(), conn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sessionkit.ErrHandshakeFailed), "got %v", err)
	assert.True(t, errors.Is(err, sessionkit.ErrCanceled))
	assert.False(t, strings.Contains(err.Error(), "session session"), "error is not double wrapped: %v", err)
}

func TestAttach_NoEventsFromFailedHandshake(t *testing.T) {
	conn := newPipeConn()
	p := newPeer(t, conn)

	var got []event.Event
	sink := event.SinkFunc(func(e event.Event) { got = append(got, e) })
	go func() {
		if _, ok := p.tryRead(); ok {
			_ = p.trySend(`{"id":1,"error":{"code":1,"message":"no"}}` + "\n")
		}
	}()

	_, err := Attach(context.Background(), conn, WithSink(sink))
	require.Error(t, err)
	for _, e := range got {
		assert.NotEqual(t, "codex/connected", e.Method())
	}
}
