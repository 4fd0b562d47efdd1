package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/sessionkit/event"
)

// DefaultQueueSize bounds the messages a Sink holds while the broker is slow.
const DefaultQueueSize = 4096

// Sink publishes session events to a Broker. Each event is published as JSON
// to the namespace named by its session id and, if configured, to a shared
// namespace carrying every session's events.
//
// Emit only queues; one goroutine publishes in order, so a slow broker never
// holds up the session that emitted the event. Close flushes the queue.
type Sink struct {
	broker    Broker
	all       string
	timeout   time.Duration
	queueSize int
	logger    *slog.Logger

	mu      sync.Mutex
	queue   []outbound
	closed  bool
	dropped int

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type outbound struct {
	namespace string
	data      []byte
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithAllNamespace also publishes every event to namespace.
func WithAllNamespace(namespace string) SinkOption {
	return func(s *Sink) { s.all = namespace }
}

// WithPublishTimeout bounds each publish call. Default: 5 seconds.
func WithPublishTimeout(d time.Duration) SinkOption {
	return func(s *Sink) { s.timeout = d }
}

// WithQueueSize bounds the number of queued publishes. When the queue is
// full new events are dropped. Default: DefaultQueueSize.
func WithQueueSize(n int) SinkOption {
	return func(s *Sink) { s.queueSize = n }
}

// WithSinkLogger sets the logger used for publish failures.
func WithSinkLogger(l *slog.Logger) SinkOption {
	return func(s *Sink) { s.logger = l }
}

// NewSink creates a Sink publishing to b and starts its publisher. Call
// Close to flush and stop it.
func NewSink(b Broker, opts ...SinkOption) *Sink {
	s := &Sink{
		broker:    b,
		timeout:   5 * time.Second,
		queueSize: DefaultQueueSize,
		logger:    slog.Default(),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.queueSize <= 0 {
		s.queueSize = DefaultQueueSize
	}
	go s.run()
	return s
}

// Emit implements event.Sink. Events emitted after Close, or while the
// queue is full, are dropped.
func (s *Sink) Emit(e event.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("marshal event", slog.String("session", e.SessionID), slog.Any("error", err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.queueSize {
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		s.logger.Warn("event queue full, dropping event",
			slog.String("session", e.SessionID),
			slog.Int("dropped", dropped))
		return
	}
	s.queue = append(s.queue, outbound{namespace: e.SessionID, data: data})
	if s.all != "" && s.all != e.SessionID {
		s.queue = append(s.queue, outbound{namespace: s.all, data: data})
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting events, publishes everything already queued and
// waits for the publisher to exit. It is safe to call more than once.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		select {
		case s.wake <- struct{}{}:
		default:
		}
	})
	<-s.done
	return nil
}

func (s *Sink) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.mu.Unlock()
			<-s.wake
			s.mu.Lock()
		}
		batch := s.queue
		s.queue = nil
		closed := s.closed
		s.mu.Unlock()

		for _, m := range batch {
			s.publish(m)
		}
		if closed && len(batch) == 0 {
			return
		}
	}
}

func (s *Sink) publish(m outbound) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.broker.Publish(ctx, m.namespace, m.data); err != nil {
		s.logger.Warn("publish event",
			slog.String("namespace", m.namespace),
			slog.Any("error", err))
	}
}

// Decode parses an envelope published by Sink back into an event.
func Decode(env Envelope) (event.Event, error) {
	var e event.Event
	err := json.Unmarshal(env.Data, &e)
	return e, err
}

var _ event.Sink = (*Sink)(nil)
