// Package memory provides an in-process broker.Broker.
package memory

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/sessionkit/broker"
)

const (
	// DefaultMaxHistory is the number of messages retained per namespace
	// for resumption.
	DefaultMaxHistory = 1000

	subscriberBuffer = 256
)

// Broker is an in-memory broker.Broker. Event ids are decimal sequence
// numbers starting at 1 within each namespace.
type Broker struct {
	mu         sync.Mutex
	namespaces map[string]*namespace
	maxHistory int
}

type namespace struct {
	seq         uint64
	history     []broker.Envelope
	subscribers map[*stream]struct{}
}

// Option configures a Broker.
type Option func(*Broker)

// WithMaxHistory sets how many messages each namespace retains.
func WithMaxHistory(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.maxHistory = n
		}
	}
}

// New creates an empty Broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		namespaces: make(map[string]*namespace),
		maxHistory: DefaultMaxHistory,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) namespace(name string) *namespace {
	ns, ok := b.namespaces[name]
	if !ok {
		ns = &namespace{subscribers: make(map[*stream]struct{})}
		b.namespaces[name] = ns
	}
	return ns
}

// Publish implements broker.Broker. Subscribers whose buffer is full miss the
// message but can recover it from history by resubscribing.
func (b *Broker) Publish(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ns := b.namespace(name)
	ns.seq++
	env := broker.Envelope{
		ID:   strconv.FormatUint(ns.seq, 10),
		Data: append([]byte(nil), data...),
	}

	ns.history = append(ns.history, env)
	if over := len(ns.history) - b.maxHistory; over > 0 {
		ns.history = append(ns.history[:0:0], ns.history[over:]...)
	}

	for sub := range ns.subscribers {
		sub.deliver(env)
	}
	return env.ID, nil
}

// Subscribe implements broker.Broker.
func (b *Broker) Subscribe(ctx context.Context, name, lastEventID string) (broker.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ns := b.namespace(name)
	sub := &stream{
		broker: b,
		name:   name,
		ch:     make(chan broker.Envelope, subscriberBuffer),
		closed: make(chan struct{}),
	}

	if lastEventID != "" {
		last, err := strconv.ParseUint(lastEventID, 10, 64)
		if err != nil || last > ns.seq {
			return nil, fmt.Errorf("%w: %q in namespace %q", broker.ErrUnknownEventID, lastEventID, name)
		}
		for _, env := range ns.history {
			seq, _ := strconv.ParseUint(env.ID, 10, 64)
			if seq > last {
				sub.backlog = append(sub.backlog, env)
			}
		}
	}

	ns.subscribers[sub] = struct{}{}
	return sub, nil
}

// Cleanup implements broker.Broker.
func (b *Broker) Cleanup(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	ns, ok := b.namespaces[name]
	delete(b.namespaces, name)
	b.mu.Unlock()

	if ok {
		for sub := range ns.subscribers {
			sub.shutdown()
		}
	}
	return nil
}

func (b *Broker) unsubscribe(sub *stream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ns, ok := b.namespaces[sub.name]; ok {
		delete(ns.subscribers, sub)
	}
}

type stream struct {
	broker  *Broker
	name    string
	backlog []broker.Envelope
	ch      chan broker.Envelope

	once     sync.Once
	closed   chan struct{}
	released atomic.Bool
}

// deliver is called with the broker lock held.
func (s *stream) deliver(env broker.Envelope) {
	select {
	case <-s.closed:
	case s.ch <- env:
	default:
	}
}

func (s *stream) shutdown() {
	s.once.Do(func() { close(s.closed) })
}

// Next implements broker.Stream.
func (s *stream) Next(ctx context.Context) (broker.Envelope, error) {
	if s.released.Load() {
		return broker.Envelope{}, io.EOF
	}
	if len(s.backlog) > 0 {
		env := s.backlog[0]
		s.backlog = s.backlog[1:]
		return env, nil
	}

	// Buffered messages win over a concurrent close.
	select {
	case env := <-s.ch:
		return env, nil
	default:
	}

	select {
	case env := <-s.ch:
		return env, nil
	case <-s.closed:
		return broker.Envelope{}, io.EOF
	case <-ctx.Done():
		return broker.Envelope{}, ctx.Err()
	}
}

// Close implements broker.Stream.
func (s *stream) Close() error {
	s.released.Store(true)
	s.shutdown()
	s.broker.unsubscribe(s)
	return nil
}

var _ broker.Broker = (*Broker)(nil)
