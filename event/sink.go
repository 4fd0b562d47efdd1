package event

import (
	"sync"
	"sync/atomic"
)

// Sink receives events. Emit must not retain e.Message beyond the call
// unless it copies it; implementations must be safe for concurrent use.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit implements Sink.
func (f SinkFunc) Emit(e Event) { f(e) }

// Multi fans every event out to each sink in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// DefaultBuffer is the ChannelSink capacity used when none is configured.
const DefaultBuffer = 256

// ChannelSink buffers events in a channel. When the buffer is full the oldest
// event that may be dropped is discarded so producers keep going. Server
// requests are never discarded: if the buffer holds nothing else, Emit waits
// for the consumer or for Close.
type ChannelSink struct {
	mu       sync.Mutex
	ch       chan Event
	closed   bool
	quit     chan struct{}
	quitOnce sync.Once
	dropped  atomic.Uint64
}

// NewChannelSink creates a ChannelSink with the given capacity.
func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = DefaultBuffer
	}
	return &ChannelSink{ch: make(chan Event, size), quit: make(chan struct{})}
}

// Emit implements Sink. Events emitted after Close are discarded.
func (c *ChannelSink) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.ch <- e:
		return
	default:
	}

	// Only Emit sends on ch and it holds mu, so eviction leaves room.
	if c.evictOldest() {
		c.ch <- e
		return
	}
	if !e.mustDeliver() {
		c.dropped.Add(1)
		return
	}
	select {
	case c.ch <- e:
	case <-c.quit:
	}
}

// evictOldest removes the oldest droppable buffered event, keeping the order
// of the rest. Caller holds mu.
func (c *ChannelSink) evictOldest() bool {
	buffered := make([]Event, 0, cap(c.ch))
drain:
	for {
		select {
		case e := <-c.ch:
			buffered = append(buffered, e)
		default:
			break drain
		}
	}

	evicted := false
	for i, e := range buffered {
		if !e.mustDeliver() {
			buffered = append(buffered[:i], buffered[i+1:]...)
			c.dropped.Add(1)
			evicted = true
			break
		}
	}
	for _, e := range buffered {
		c.ch <- e
	}
	return evicted || len(buffered) < cap(c.ch)
}

// mustDeliver reports whether e is a server request awaiting a reply.
func (e Event) mustDeliver() bool {
	if e.Kind != KindProtocol {
		return false
	}
	_, ok := e.RequestID()
	return ok
}

// C returns the receive side of the buffer.
func (c *ChannelSink) C() <-chan Event {
	return c.ch
}

// Dropped returns how many events were discarded because the buffer was full.
func (c *ChannelSink) Dropped() uint64 {
	return c.dropped.Load()
}

// Close closes the channel and releases a blocked Emit. Buffered events
// remain readable.
func (c *ChannelSink) Close() {
	c.quitOnce.Do(func() { close(c.quit) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
