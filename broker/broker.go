// Package broker carries session events to subscribers outside the session,
// such as a UI process.
//
// Messages are published to a namespace (by convention the session id) and
// delivered to every subscriber of that namespace in publish order. A
// subscriber that reconnects can resume after the last event id it saw.
//
// Implementations live in subpackages: memory for a single process and redis
// for fan-out across processes via Redis Streams. brokertest holds the
// conformance suite both pass.
package broker

import (
	"context"
	"errors"
)

// ErrUnknownEventID is returned by Subscribe when lastEventID cannot be
// located in the namespace.
var ErrUnknownEventID = errors.New("unknown event id")

// Broker publishes opaque messages to namespaces.
type Broker interface {
	// Publish appends data to namespace and returns its event id.
	Publish(ctx context.Context, namespace string, data []byte) (eventID string, err error)

	// Subscribe streams namespace messages. With an empty lastEventID the
	// stream starts at the next published message; otherwise it resumes
	// after lastEventID.
	Subscribe(ctx context.Context, namespace, lastEventID string) (Stream, error)

	// Cleanup removes all stored messages and ends all subscriptions of
	// namespace.
	Cleanup(ctx context.Context, namespace string) error
}

// Stream is an ordered subscription. It is safe for use by one consumer.
type Stream interface {
	// Next blocks until a message is available or ctx is done. It returns
	// io.EOF once the stream has been closed or its namespace cleaned up.
	Next(ctx context.Context) (Envelope, error)

	// Close releases the subscription.
	Close() error
}

// Envelope is one delivered message.
type Envelope struct {
	// ID increases monotonically within a namespace.
	ID string `json:"id"`

	// Data is the published payload.
	Data []byte `json:"data"`
}
