package memory_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/sessionkit/broker"
	"github.com/randalmurphal/sessionkit/broker/brokertest"
	"github.com/randalmurphal/sessionkit/broker/memory"
)

func TestMemoryBroker(t *testing.T) {
	brokertest.RunBrokerTests(t, func(*testing.T) broker.Broker {
		return memory.New()
	})
}

func TestMemoryBroker_HistoryIsBounded(t *testing.T) {
	ctx := context.Background()
	b := memory.New(memory.WithMaxHistory(2))

	first, err := b.Publish(ctx, "ns", []byte("1"))
	require.NoError(t, err)
	for _, d := range []string{"2", "3", "4"} {
		_, err := b.Publish(ctx, "ns", []byte(d))
		require.NoError(t, err)
	}

	// Only the last two messages survive.
	s, err := b.Subscribe(ctx, "ns", first)
	require.NoError(t, err)
	defer s.Close()

	nctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	env, err := s.Next(nctx)
	require.NoError(t, err)
	assert.Equal(t, "3", string(env.Data))
	env, err = s.Next(nctx)
	require.NoError(t, err)
	assert.Equal(t, "4", string(env.Data))
}

func TestMemoryBroker_FutureIDIsUnknown(t *testing.T) {
	b := memory.New()
	_, err := b.Subscribe(context.Background(), "ns", "5")
	assert.ErrorIs(t, err, broker.ErrUnknownEventID)
}

func TestMemoryBroker_CleanupEndsSubscriptions(t *testing.T) {
	ctx := context.Background()
	b := memory.New()

	s, err := b.Subscribe(ctx, "ns", "")
	require.NoError(t, err)

	require.NoError(t, b.Cleanup(ctx, "ns"))

	nctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = s.Next(nctx)
	assert.ErrorIs(t, err, io.EOF)

	// Closing after cleanup does not panic.
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestMemoryBroker_PublishCopiesData(t *testing.T) {
	ctx := context.Background()
	b := memory.New()

	s, err := b.Subscribe(ctx, "ns", "")
	require.NoError(t, err)
	defer s.Close()

	data := []byte("abc")
	_, err = b.Publish(ctx, "ns", data)
	require.NoError(t, err)
	data[0] = 'x'

	env, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(env.Data))
}

func TestMemoryBroker_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := memory.New()
	_, err := b.Publish(ctx, "ns", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = b.Subscribe(ctx, "ns", "")
	assert.ErrorIs(t, err, context.Canceled)
}
