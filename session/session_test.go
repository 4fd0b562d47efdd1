package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/sessionkit"
	"github.com/randalmurphal/sessionkit/event"
	"github.com/randalmurphal/sessionkit/jsonrpc"
)

func TestRequest_WireShapeAndReply(t *testing.T) {
	s, p := startSession(t)

	type result struct {
		reply *jsonrpc.Reply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := s.Request(context.Background(), "ping", map[string]any{})
		done <- result{reply, err}
	}()

	msg := p.read()
	assert.JSONEq(t, `{"id":1,"method":"ping","params":{}}`, msg.raw)

	p.send(`{"id":1,"result":"pong"}` + "\n")

	r := <-done
	require.NoError(t, r.err)
	var got string
	require.NoError(t, r.reply.Decode(&got))
	assert.Equal(t, "pong", got)
	assert.Equal(t, uint64(1), r.reply.ID)
}

func TestRequest_IDsAreMonotonic(t *testing.T) {
	s, p := startSession(t)

	for want := uint64(1); want <= 3; want++ {
		done := make(chan error, 1)
		go func() {
			_, err := s.Request(context.Background(), "m", nil)
			done <- err
		}()
		msg := p.read()
		require.NotNil(t, msg.ID)
		assert.Equal(t, want, *msg.ID)
		assert.True(t, msg.has("params"), "params is always present on requests")
		p.send(fmt.Sprintf(`{"id":%d,"result":null}`+"\n", *msg.ID))
		require.NoError(t, <-done)
	}
}

func TestRequest_ConcurrentNoCrossDelivery(t *testing.T) {
	s, p := startSession(t)
	const n = 50

	// Peer: collect every request, then answer in reverse order echoing n.
	go func() {
		var msgs []wireMessage
		for i := 0; i < n; i++ {
			msg, ok := p.tryRead()
			if !ok {
				return
			}
			msgs = append(msgs, msg)
		}
		for i := len(msgs) - 1; i >= 0; i-- {
			var params struct {
				N int `json:"n"`
			}
			_ = json.Unmarshal(msgs[i].Params, &params)
			line := fmt.Sprintf(`{"id":%d,"result":{"n":%d,"id":%d}}`+"\n", *msgs[i].ID, params.N, *msgs[i].ID)
			if p.trySend(line) != nil {
				return
			}
		}
	}()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out struct {
				N  int    `json:"n"`
				ID uint64 `json:"id"`
			}
			if err := s.Call(context.Background(), "echo", map[string]int{"n": i}, &out); err != nil {
				errs <- err
				return
			}
			if out.N != i {
				errs <- fmt.Errorf("caller %d received reply for %d", i, out.N)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Zero(t, s.pending.len())
}

func TestRequest_OutOfOrderReplies(t *testing.T) {
	s, p := startSession(t)

	first := make(chan string, 1)
	second := make(chan string, 1)
	call := func(method string, out chan<- string) {
		var got string
		if err := s.Call(context.Background(), method, nil, &got); err != nil {
			out <- "error: " + err.Error()
			return
		}
		out <- got
	}

	go call("first", first)
	m1 := p.read()
	go call("second", second)
	m2 := p.read()
	require.Equal(t, "first", m1.Method)
	require.Equal(t, "second", m2.Method)

	p.send(fmt.Sprintf(`{"id":%d,"result":"for-second"}`+"\n", *m2.ID))
	assert.Equal(t, "for-second", <-second)

	p.send(fmt.Sprintf(`{"id":%d,"result":"for-first"}`+"\n", *m1.ID))
	assert.Equal(t, "for-first", <-first)
}

func TestRequest_ContextCancelRemovesPending(t *testing.T) {
	s, p := startSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.Request(ctx, "slow", nil)
		done <- err
	}()
	msg := p.read()

	err := <-done
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Zero(t, s.pending.len(), "abandoned request must not leak its slot")

	// A late reply is dropped and the session keeps working.
	p.send(fmt.Sprintf(`{"id":%d,"result":"late"}`+"\n", *msg.ID))

	go func() {
		m := p.read()
		p.send(fmt.Sprintf(`{"id":%d,"result":"fresh"}`+"\n", *m.ID))
	}()
	var got string
	require.NoError(t, s.Call(context.Background(), "next", nil, &got))
	assert.Equal(t, "fresh", got)
}

func TestRequest_AlreadyCanceledContext(t *testing.T) {
	s, _ := startSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Request(ctx, "m", nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, s.pending.len())
}

func TestCall_RPCError(t *testing.T) {
	s, p := startSession(t)

	go func() {
		m := p.read()
		p.send(fmt.Sprintf(`{"id":%d,"error":{"code":-32601,"message":"no such method"}}`+"\n", *m.ID))
	}()

	err := s.Call(context.Background(), "missing", nil, nil)
	var rpcErr *jsonrpc.RPCError
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, rpcErr.Code)
}

func TestRequest_ReplyWithErrorIsReturnedToCaller(t *testing.T) {
	s, p := startSession(t)

	go func() {
		m := p.read()
		p.send(fmt.Sprintf(`{"id":%d,"error":{"code":1,"message":"x"}}`+"\n", *m.ID))
	}()

	reply, err := s.Request(context.Background(), "m", nil)
	require.NoError(t, err, "protocol errors are left for the caller")
	assert.True(t, reply.HasError())
}

func TestNotify_OmitsNilParams(t *testing.T) {
	s, p := startSession(t)

	go func() { _ = s.Notify(context.Background(), "initialized", nil) }()
	msg := p.read()
	assert.JSONEq(t, `{"method":"initialized"}`, msg.raw)
	assert.False(t, msg.has("id"))

	go func() { _ = s.Notify(context.Background(), "turn/interrupt", map[string]string{"turnId": "t1"}) }()
	msg = p.read()
	assert.JSONEq(t, `{"method":"turn/interrupt","params":{"turnId":"t1"}}`, msg.raw)
}

func TestReply_WireShape(t *testing.T) {
	s, p := startSession(t)

	done := make(chan error, 1)
	go func() { done <- s.Reply(context.Background(), 9, map[string]string{"decision": "accept"}) }()

	msg := p.read()
	assert.JSONEq(t, `{"id":9,"result":{"decision":"accept"}}`, msg.raw)
	require.NoError(t, <-done)
	assert.Zero(t, s.pending.len(), "reply does no bookkeeping")
}

// waitWriting waits until some write holds the stream.
func waitWriting(t *testing.T, s *session) {
	t.Helper()
	require.Eventually(t, func() bool {
		if s.writeMu.TryLock() {
			s.writeMu.Unlock()
			return false
		}
		return true
	}, 5*time.Second, time.Millisecond)
}

func TestWrite_QueuedLineIsNotSentAfterContextEnds(t *testing.T) {
	s, p := startSession(t)

	first := make(chan error, 1)
	go func() { first <- s.Notify(context.Background(), "first", nil) }()
	waitWriting(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Notify(ctx, "turn/interrupt", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	third := make(chan error, 1)
	go func() { third <- s.Notify(context.Background(), "third", nil) }()

	assert.Equal(t, "first", p.read().Method)
	assert.Equal(t, "third", p.read().Method)
	require.NoError(t, <-first)
	require.NoError(t, <-third)
}

func TestWrite_StartedLineReportsItsOutcome(t *testing.T) {
	s, p := startSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Notify(ctx, "turn/interrupt", nil) }()
	waitWriting(t, s)

	<-ctx.Done()
	select {
	case err := <-done:
		t.Fatalf("Notify returned %v before its line was read", err)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, "turn/interrupt", p.read().Method)
	require.NoError(t, <-done, "a line that reached the peer is reported as sent")
}

func TestWrite_StartedLineEndsOnClose(t *testing.T) {
	s, _ := startSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Notify(ctx, "unread", nil) }()
	waitWriting(t, s)

	<-ctx.Done()
	require.NoError(t, s.Close())

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, sessionkit.ErrSessionClosed), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("write did not end on Close")
	}
}

func TestWrites_AreNotInterleaved(t *testing.T) {
	s, p := startSession(t)
	const n = 40
	big := make([]string, 200)
	for i := range big {
		big[i] = "payload"
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Notify(context.Background(), fmt.Sprintf("n/%d", i), big)
		}()
	}

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		msg := p.read()
		assert.Len(t, msg.Params, len(mustJSON(t, big)))
		seen[msg.Method] = true
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestStreamClose_CancelsEveryPendingRequest(t *testing.T) {
	s, p := startSession(t)
	const n = 5

	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := s.Request(context.Background(), "never", nil)
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		p.read()
	}
	require.Eventually(t, func() bool { return s.pending.len() == n }, 5*time.Second, 5*time.Millisecond)

	p.closeStdout()

	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			assert.True(t, errors.Is(err, sessionkit.ErrCanceled), "got %v", err)
			assert.True(t, errors.Is(err, sessionkit.ErrStreamClosed), "got %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("pending request hung after stream close")
		}
	}

	waitDone(t, s.Done())
	assert.Equal(t, StatusClosed, s.Status())
	assert.True(t, errors.Is(s.Err(), sessionkit.ErrStreamClosed))

	_, err := s.Request(context.Background(), "after", nil)
	assert.True(t, errors.Is(err, sessionkit.ErrSessionClosed), "got %v", err)
	err = s.Notify(context.Background(), "after", nil)
	assert.True(t, errors.Is(err, sessionkit.ErrSessionClosed), "got %v", err)

	_, ok := <-s.Events()
	assert.False(t, ok, "events channel is closed after teardown")
}

func TestClose_TearsDownAndIsIdempotent(t *testing.T) {
	s, p := startSession(t)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Request(context.Background(), "never", nil)
		errs <- err
	}()
	p.read()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := <-errs
	assert.True(t, errors.Is(err, sessionkit.ErrCanceled))
	assert.True(t, p.conn.isKilled())
	assert.Equal(t, StatusClosed, s.Status())
	assert.True(t, errors.Is(s.Err(), sessionkit.ErrSessionClosed))
	assert.Equal(t, 1, p.conn.waits, "process is reaped exactly once")
}

func TestClose_NoEventsAfterReturn(t *testing.T) {
	var mu sync.Mutex
	count := 0
	s, p := startSession(t, WithSink(event.SinkFunc(func(event.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})))

	stop := make(chan struct{})
	go func() {
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if p.trySend(fmt.Sprintf(`{"method":"tick","params":{"n":%d}}`+"\n", i)) != nil {
				return
			}
		}
	}()
	defer close(stop)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count > 10
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, s.Close())

	mu.Lock()
	after := count
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, after, count, "sink received events after Close returned")
	mu.Unlock()

	for range s.Events() {
	}
}

func TestInfo(t *testing.T) {
	s, p := startSession(t)
	before := time.Now()

	go func() { _, _ = s.Request(context.Background(), "pending", nil) }()
	p.read()
	require.Eventually(t, func() bool { return s.Info().Pending == 1 }, 5*time.Second, 5*time.Millisecond)

	info := s.Info()
	assert.Equal(t, "s1", info.ID)
	assert.Equal(t, StatusStarting, info.Status)
	assert.Equal(t, 4242, info.Pid)
	assert.False(t, info.CreatedAt.After(before))
	assert.False(t, info.LastActivity.Before(info.CreatedAt))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
