package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversSubscribeConfirmation(t *testing.T) {
	bus := NewMemoryBus()

	var deliveries []Delivery
	err := bus.Subscribe(context.Background(), "chat", func(d Delivery) {
		deliveries = append(deliveries, d)
	})
	require.NoError(t, err)

	require.Len(t, deliveries, 1)
	require.Equal(t, DeliverySubscribe, deliveries[0].Kind)
	require.Equal(t, "chat", deliveries[0].Channel)
}

func TestMemoryBusPublishReachesAllSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var first, second []Delivery
	require.NoError(t, bus.Subscribe(ctx, "chat", func(d Delivery) { first = append(first, d) }))
	require.NoError(t, bus.Subscribe(ctx, "chat", func(d Delivery) { second = append(second, d) }))

	require.NoError(t, bus.Publish(ctx, "chat", "Alice: hi"))

	require.Equal(t, Delivery{Kind: DeliveryMessage, Channel: "chat", Payload: "Alice: hi"}, first[len(first)-1])
	require.Equal(t, Delivery{Kind: DeliveryMessage, Channel: "chat", Payload: "Alice: hi"}, second[len(second)-1])
}

func TestMemoryBusChannelsAreIsolated(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var deliveries []Delivery
	require.NoError(t, bus.Subscribe(ctx, "chat", func(d Delivery) { deliveries = append(deliveries, d) }))

	require.NoError(t, bus.Publish(ctx, "other", "nope"))

	require.Len(t, deliveries, 1) // only the subscribe confirmation
}

func TestMemoryBusClose(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, bus.Subscribe(ctx, "chat", func(Delivery) {}))
	require.NoError(t, bus.Close())

	require.ErrorIs(t, bus.Publish(ctx, "chat", "x"), ErrBusClosed)
	require.ErrorIs(t, bus.Subscribe(ctx, "chat", func(Delivery) {}), ErrBusClosed)
	require.NoError(t, bus.Close())
}

// Closing a bus that never connected must return promptly and leave the
// underlying client unusable rather than hanging.
func TestRedisBusCloseWithoutSubscribeIsBounded(t *testing.T) {
	bus := NewRedisBus("127.0.0.1:0", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, bus.Close())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RedisBus.Close did not return in time")
	}

	require.Error(t, bus.Publish(context.Background(), "chat", "x"))
}

// Subscribing against an unreachable bus must fail setup instead of
// deferring the error to the background reader.
func TestRedisBusSubscribeFailsFastWhenUnreachable(t *testing.T) {
	bus := NewRedisBus("127.0.0.1:0", nil)
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := bus.Subscribe(ctx, "chat", func(Delivery) {})
	require.Error(t, err)
}
