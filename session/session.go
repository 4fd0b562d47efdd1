package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/sessionkit"
	"github.com/randalmurphal/sessionkit/event"
	"github.com/randalmurphal/sessionkit/jsonrpc"
)

// Session is one live connection to an app-server process.
type Session interface {
	// ID returns the session identity used to tag events.
	ID() string

	// Request sends a request and waits for the reply with the same id.
	// The reply's result or error member is left for the caller. If ctx
	// ends while the line is still queued behind other writes it is not
	// sent; once it has begun writing it is sent in full.
	Request(ctx context.Context, method string, params any) (*jsonrpc.Reply, error)

	// Call sends a request and unmarshals the result into out.
	// A reply carrying an error member is returned as *jsonrpc.RPCError.
	Call(ctx context.Context, method string, params, out any) error

	// Notify sends a notification. Nil params are omitted.
	Notify(ctx context.Context, method string, params any) error

	// Reply answers a server-initiated request delivered as an event.
	Reply(ctx context.Context, id uint64, result any) error

	// Events returns the session's event stream. It is closed once the
	// session has been torn down.
	Events() <-chan event.Event

	// Status returns the current session state.
	Status() Status

	// Info returns session metadata.
	Info() Info

	// Done is closed once the process has been reaped.
	Done() <-chan struct{}

	// Err returns why the session ended, or nil while it is running.
	Err() error

	// Close terminates the session and waits for teardown to finish.
	Close() error
}

// session implements Session.
type session struct {
	id     string
	config sessionConfig
	logger *slog.Logger

	conn    Conn
	binary  string
	version string

	// Write side
	writeMu     sync.Mutex
	writeClosed atomic.Bool

	// Correlation
	nextID  atomic.Uint64
	pending *pendingTable

	// Events
	events     *event.ChannelSink
	sink       event.Sink
	stopEvents atomic.Bool

	// State
	status       atomic.Value // Status
	createdAt    time.Time
	lastActivity atomic.Int64 // unix nanos

	// Lifecycle
	loops        sync.WaitGroup
	stderrDone   chan struct{}
	shutdownOnce sync.Once
	errMu        sync.Mutex
	err          error
	done         chan struct{}
}

// newSession wraps conn. Call start to begin reading.
func newSession(cfg sessionConfig, conn Conn) *session {
	events := event.NewChannelSink(cfg.eventBuffer)
	sinks := make(event.Multi, 0, len(cfg.sinks)+1)
	sinks = append(sinks, events)
	sinks = append(sinks, cfg.sinks...)

	s := &session{
		id:         cfg.id,
		config:     cfg,
		logger:     cfg.log().With(slog.String("session", cfg.id)),
		conn:       conn,
		pending:    newPendingTable(),
		events:     events,
		sink:       sinks,
		createdAt:  time.Now(),
		stderrDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.status.Store(StatusStarting)
	s.touch()
	return s
}

// start launches the stdout router, the stderr forwarder and the reaper.
func (s *session) start() {
	s.loops.Add(2)
	go s.readLoop()
	go s.stderrLoop()
	go s.reap()
}

// ID implements Session.
func (s *session) ID() string {
	return s.id
}

// Request implements Session.
func (s *session) Request(ctx context.Context, method string, params any) (*jsonrpc.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, sessionkit.NewError(s.id, method, err)
	}

	id := s.nextID.Add(1)
	pc, err := s.pending.add(id)
	if err != nil {
		return nil, sessionkit.NewError(s.id, method, err)
	}

	if err := s.write(ctx, jsonrpc.Request{ID: id, Method: method, Params: params}); err != nil {
		s.pending.remove(id)
		return nil, sessionkit.NewError(s.id, method, err)
	}

	select {
	case reply := <-pc.respCh:
		return reply, nil
	case err := <-pc.errCh:
		return nil, sessionkit.NewError(s.id, method, err)
	case <-ctx.Done():
		if s.pending.remove(id) {
			return nil, sessionkit.NewError(s.id, method, ctx.Err())
		}
		// Completed concurrently with cancellation.
		select {
		case reply := <-pc.respCh:
			return reply, nil
		case err := <-pc.errCh:
			return nil, sessionkit.NewError(s.id, method, err)
		}
	}
}

// Call implements Session.
func (s *session) Call(ctx context.Context, method string, params, out any) error {
	reply, err := s.Request(ctx, method, params)
	if err != nil {
		return err
	}
	if err := reply.Err(); err != nil {
		return err
	}
	return reply.Decode(out)
}

// Notify implements Session.
func (s *session) Notify(ctx context.Context, method string, params any) error {
	if err := ctx.Err(); err != nil {
		return sessionkit.NewError(s.id, method, err)
	}
	if err := s.write(ctx, jsonrpc.Notification{Method: method, Params: params}); err != nil {
		return sessionkit.NewError(s.id, method, err)
	}
	return nil
}

// Reply implements Session.
func (s *session) Reply(ctx context.Context, id uint64, result any) error {
	if err := ctx.Err(); err != nil {
		return sessionkit.NewError(s.id, "reply", err)
	}
	if err := s.write(ctx, jsonrpc.Response{ID: id, Result: result}); err != nil {
		return sessionkit.NewError(s.id, "reply", err)
	}
	return nil
}

// Write states.
const (
	writeQueued int32 = iota
	writeStarted
	writeAbandoned
)

// outboundLine is one encoded message waiting for the write lock.
type outboundLine struct {
	data  []byte
	state atomic.Int32
	done  chan error
}

// write encodes msg and writes it as one line under the write lock. A line
// still waiting for the lock when ctx ends is never written and ctx's error
// is returned. A line that has begun writing cannot be withdrawn, so write
// then waits for its outcome; teardown unblocks it.
func (s *session) write(ctx context.Context, msg any) error {
	data, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	if s.writeClosed.Load() {
		return sessionkit.ErrSessionClosed
	}

	line := &outboundLine{data: data, done: make(chan error, 1)}
	go s.writeLine(line)

	select {
	case err := <-line.done:
		return err
	case <-ctx.Done():
		if line.state.CompareAndSwap(writeQueued, writeAbandoned) {
			return ctx.Err()
		}
		return <-line.done
	}
}

func (s *session) writeLine(line *outboundLine) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !line.state.CompareAndSwap(writeQueued, writeStarted) {
		return
	}
	line.done <- s.writeLocked(line.data)
}

func (s *session) writeLocked(data []byte) error {
	if s.writeClosed.Load() {
		return sessionkit.ErrSessionClosed
	}
	if _, err := s.conn.Stdin().Write(data); err != nil {
		if s.writeClosed.Load() {
			return sessionkit.ErrSessionClosed
		}
		return fmt.Errorf("%w: %w", sessionkit.ErrTransportWrite, err)
	}
	s.touch()
	return nil
}

// emit delivers e to every sink unless the session is being closed.
func (s *session) emit(e event.Event) {
	if s.stopEvents.Load() {
		return
	}
	s.sink.Emit(e)
}

// Events implements Session.
func (s *session) Events() <-chan event.Event {
	return s.events.C()
}

// Status implements Session.
func (s *session) Status() Status {
	return s.status.Load().(Status)
}

// Info implements Session.
func (s *session) Info() Info {
	return Info{
		ID:            s.id,
		Status:        s.Status(),
		Pid:           s.conn.Pid(),
		Binary:        s.binary,
		Version:       s.version,
		CreatedAt:     s.createdAt,
		LastActivity:  time.Unix(0, s.lastActivity.Load()),
		Pending:       s.pending.len(),
		DroppedEvents: s.events.Dropped(),
	}
}

// Done implements Session.
func (s *session) Done() <-chan struct{} {
	return s.done
}

// Err implements Session.
func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close implements Session.
func (s *session) Close() error {
	s.stopEvents.Store(true)
	// Release a router waiting on a full event buffer.
	s.events.Close()
	s.shutdown(sessionkit.ErrSessionClosed)

	// Unblock readers even if a descendant still holds the pipes open.
	_ = s.conn.Stdout().Close()
	_ = s.conn.Stderr().Close()

	<-s.done
	return nil
}

// shutdown tears the session down once: refuses writes, fails pending
// requests with ErrCanceled and kills the process.
func (s *session) shutdown(cause error) {
	s.shutdownOnce.Do(func() {
		s.errMu.Lock()
		s.err = cause
		s.errMu.Unlock()

		s.status.Store(StatusClosing)
		s.writeClosed.Store(true)
		_ = s.conn.Stdin().Close()

		failed := s.pending.failAll(fmt.Errorf("%w: %w", sessionkit.ErrCanceled, cause))
		if err := s.conn.Kill(); err != nil {
			s.logger.Warn("kill failed", slog.Any("error", err))
		}

		s.logger.Debug("session shutting down",
			slog.Any("cause", cause),
			slog.Int("failed_requests", failed))
	})
}

// reap waits for both reader loops, then reaps the process and closes the
// event stream.
func (s *session) reap() {
	s.loops.Wait()
	s.shutdown(sessionkit.ErrStreamClosed)

	waitErr := s.conn.Wait()
	if waitErr != nil && !errors.Is(s.Err(), sessionkit.ErrSessionClosed) {
		s.logger.Debug("process exited", slog.Any("error", waitErr))
	}

	s.events.Close()
	s.status.Store(StatusClosed)
	close(s.done)
}

// touch records activity for Info and idle cleanup.
func (s *session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *session) idleSince() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// readError classifies why the stdout loop stopped.
func readError(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return sessionkit.ErrStreamClosed
	}
	return fmt.Errorf("%w: %w", sessionkit.ErrTransportRead, err)
}
