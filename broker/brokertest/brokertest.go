// Package brokertest provides a conformance suite for broker.Broker
// implementations.
package brokertest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/sessionkit/broker"
)

// Factory returns a fresh broker for one subtest.
type Factory func(t *testing.T) broker.Broker

// RunBrokerTests runs the conformance suite against brokers from factory.
func RunBrokerTests(t *testing.T, factory Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, b broker.Broker)
	}{
		{"PublishSubscribe", testPublishSubscribe},
		{"Order", testOrder},
		{"MultipleSubscribers", testMultipleSubscribers},
		{"NamespaceIsolation", testNamespaceIsolation},
		{"IDsIncrease", testIDsIncrease},
		{"Resume", testResume},
		{"ResumeFromLatest", testResumeFromLatest},
		{"ResumeFromUnknownID", testResumeFromUnknownID},
		{"NextHonorsContext", testNextHonorsContext},
		{"CloseEndsStream", testCloseEndsStream},
		{"Cleanup", testCleanup},
		{"ConcurrentPublish", testConcurrentPublish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, factory(t))
		})
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func subscribe(t *testing.T, b broker.Broker, ns, last string) broker.Stream {
	t.Helper()
	s, err := b.Subscribe(testContext(t), ns, last)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func publish(t *testing.T, b broker.Broker, ns, data string) string {
	t.Helper()
	id, err := b.Publish(testContext(t), ns, []byte(data))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func next(t *testing.T, s broker.Stream) broker.Envelope {
	t.Helper()
	env, err := s.Next(testContext(t))
	require.NoError(t, err)
	return env
}

func testPublishSubscribe(t *testing.T, b broker.Broker) {
	s := subscribe(t, b, "ns", "")
	id := publish(t, b, "ns", "hello")

	env := next(t, s)
	assert.Equal(t, id, env.ID)
	assert.Equal(t, "hello", string(env.Data))
}

func testOrder(t *testing.T, b broker.Broker) {
	s := subscribe(t, b, "ns", "")
	for i := 0; i < 20; i++ {
		publish(t, b, "ns", fmt.Sprintf("m%d", i))
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, fmt.Sprintf("m%d", i), string(next(t, s).Data))
	}
}

func testMultipleSubscribers(t *testing.T, b broker.Broker) {
	s1 := subscribe(t, b, "ns", "")
	s2 := subscribe(t, b, "ns", "")
	publish(t, b, "ns", "both")

	assert.Equal(t, "both", string(next(t, s1).Data))
	assert.Equal(t, "both", string(next(t, s2).Data))
}

func testNamespaceIsolation(t *testing.T, b broker.Broker) {
	a := subscribe(t, b, "a", "")
	publish(t, b, "b", "for-b")
	publish(t, b, "a", "for-a")

	assert.Equal(t, "for-a", string(next(t, a).Data))
}

func testIDsIncrease(t *testing.T, b broker.Broker) {
	s := subscribe(t, b, "ns", "")
	first := publish(t, b, "ns", "1")
	second := publish(t, b, "ns", "2")
	assert.NotEqual(t, first, second)

	assert.Equal(t, first, next(t, s).ID)
	assert.Equal(t, second, next(t, s).ID)
}

func testResume(t *testing.T, b broker.Broker) {
	first := publish(t, b, "ns", "one")
	publish(t, b, "ns", "two")
	publish(t, b, "ns", "three")

	s := subscribe(t, b, "ns", first)
	assert.Equal(t, "two", string(next(t, s).Data))
	assert.Equal(t, "three", string(next(t, s).Data))

	publish(t, b, "ns", "four")
	assert.Equal(t, "four", string(next(t, s).Data))
}

func testResumeFromLatest(t *testing.T, b broker.Broker) {
	publish(t, b, "ns", "old")
	last := publish(t, b, "ns", "latest")

	s := subscribe(t, b, "ns", last)
	publish(t, b, "ns", "new")
	assert.Equal(t, "new", string(next(t, s).Data))
}

func testResumeFromUnknownID(t *testing.T, b broker.Broker) {
	publish(t, b, "ns", "one")

	_, err := b.Subscribe(testContext(t), "ns", "not-an-id")
	require.Error(t, err)
	assert.ErrorIs(t, err, broker.ErrUnknownEventID)
}

func testNextHonorsContext(t *testing.T, b broker.Broker) {
	s := subscribe(t, b, "ns", "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func testCloseEndsStream(t *testing.T, b broker.Broker) {
	s, err := b.Subscribe(testContext(t), "ns", "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Next(testContext(t))
	assert.ErrorIs(t, err, io.EOF)

	// Publishing after a subscriber left still succeeds.
	publish(t, b, "ns", "after")
}

func testCleanup(t *testing.T, b broker.Broker) {
	publish(t, b, "ns", "one")
	publish(t, b, "ns", "two")
	require.NoError(t, b.Cleanup(testContext(t), "ns"))

	s := subscribe(t, b, "ns", "")
	publish(t, b, "ns", "fresh")
	assert.Equal(t, "fresh", string(next(t, s).Data))
}

func testConcurrentPublish(t *testing.T, b broker.Broker) {
	const (
		writers = 5
		each    = 10
	)
	s := subscribe(t, b, "ns", "")

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if _, err := b.Publish(context.Background(), "ns", []byte(fmt.Sprintf("%d-%d", w, i))); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for len(seen) < writers*each {
		env, err := s.Next(testContext(t))
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.False(t, seen[string(env.Data)], "duplicate %s", env.Data)
		seen[string(env.Data)] = true
	}
	assert.Len(t, seen, writers*each)
}
