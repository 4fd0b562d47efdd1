// Package redis provides a broker.Broker backed by Redis Streams, for
// delivering session events to subscribers in other processes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/randalmurphal/sessionkit/broker"
)

// DefaultKeyPrefix is prepended to every stream key.
const DefaultKeyPrefix = "sessionkit:events:"

var streamIDPattern = regexp.MustCompile(`^\d+(-\d+)?$`)

// Broker is a Redis Streams implementation of broker.Broker. Each namespace
// is one stream; event ids are Redis stream entry ids.
type Broker struct {
	client    redis.UniversalClient
	keyPrefix string
	maxLen    int64
	block     time.Duration
	ownClient bool
}

// Config contains configuration options for the Redis broker.
type Config struct {
	// Client is the Redis client to use. If nil, one is created for Addr.
	Client redis.UniversalClient

	// Addr is used when Client is nil. Default: localhost:6379.
	Addr string

	// KeyPrefix defaults to DefaultKeyPrefix.
	KeyPrefix string

	// MaxLen approximately caps each stream. Zero leaves streams uncapped.
	MaxLen int64

	// Block is the XREAD block interval between context checks.
	// Default: 1 second.
	Block time.Duration
}

// New creates a Redis-backed broker.
func New(cfg Config) *Broker {
	b := &Broker{
		client:    cfg.Client,
		keyPrefix: cfg.KeyPrefix,
		maxLen:    cfg.MaxLen,
		block:     cfg.Block,
	}
	if b.client == nil {
		addr := cfg.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		b.client = redis.NewClient(&redis.Options{Addr: addr})
		b.ownClient = true
	}
	if b.keyPrefix == "" {
		b.keyPrefix = DefaultKeyPrefix
	}
	if b.block <= 0 {
		b.block = time.Second
	}
	return b
}

// Ping checks connectivity.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis client if the broker created it.
func (b *Broker) Close() error {
	if !b.ownClient {
		return nil
	}
	return b.client.Close()
}

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, namespace string, data []byte) (string, error) {
	key := b.streamKey(namespace)
	args := &redis.XAddArgs{
		Stream: key,
		Values: map[string]any{"data": data},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}

	id, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("publish to stream %s: %w", key, err)
	}
	return id, nil
}

// Subscribe implements broker.Broker. A well-formed lastEventID that was
// trimmed from the stream resumes at the oldest retained entry.
func (b *Broker) Subscribe(ctx context.Context, namespace, lastEventID string) (broker.Stream, error) {
	key := b.streamKey(namespace)

	start := lastEventID
	if start == "" {
		// "$" would be re-evaluated on every XREAD, losing messages
		// published between reads.
		latest, err := b.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("read stream %s: %w", key, err)
		}
		start = "0-0"
		if len(latest) > 0 {
			start = latest[0].ID
		}
	} else if !streamIDPattern.MatchString(start) {
		return nil, fmt.Errorf("%w: %q in namespace %q", broker.ErrUnknownEventID, lastEventID, namespace)
	}

	sctx, cancel := context.WithCancel(context.Background())
	return &stream{
		client: b.client,
		key:    key,
		block:  b.block,
		lastID: start,
		ctx:    sctx,
		cancel: cancel,
	}, nil
}

// Cleanup implements broker.Broker. Subscribers in other processes are not
// notified; they see no further messages.
func (b *Broker) Cleanup(ctx context.Context, namespace string) error {
	if err := b.client.Del(ctx, b.streamKey(namespace)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cleanup namespace %s: %w", namespace, err)
	}
	return nil
}

func (b *Broker) streamKey(namespace string) string {
	return b.keyPrefix + namespace
}

type stream struct {
	client redis.UniversalClient
	key    string
	block  time.Duration

	mu      sync.Mutex
	lastID  string
	pending []broker.Envelope

	ctx    context.Context
	cancel context.CancelFunc
}

// Next implements broker.Stream.
func (s *stream) Next(ctx context.Context) (broker.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.ctx.Err() != nil {
			return broker.Envelope{}, io.EOF
		}
		if len(s.pending) > 0 {
			env := s.pending[0]
			s.pending = s.pending[1:]
			return env, nil
		}
		if err := ctx.Err(); err != nil {
			return broker.Envelope{}, err
		}

		if err := s.read(ctx); err != nil {
			return broker.Envelope{}, err
		}
	}
}

func (s *stream) read(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	streams, err := s.client.XRead(rctx, &redis.XReadArgs{
		Streams: []string{s.key, s.lastID},
		Count:   100,
		Block:   s.block,
	}).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		if s.ctx.Err() != nil {
			return io.EOF
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The socket deadline can fire before the context timer.
		if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
			return context.DeadlineExceeded
		}
		return fmt.Errorf("read stream %s: %w", s.key, err)
	}

	for _, st := range streams {
		for _, msg := range st.Messages {
			s.lastID = msg.ID
			data, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			s.pending = append(s.pending, broker.Envelope{ID: msg.ID, Data: []byte(data)})
		}
	}
	return nil
}

// Close implements broker.Stream.
func (s *stream) Close() error {
	s.cancel()
	return nil
}

var _ broker.Broker = (*Broker)(nil)
