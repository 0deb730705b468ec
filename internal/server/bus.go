// Package server abstracts the pub/sub transport behind the Bus interface
// and provides the Redis-backed implementation used for cross-process
// message delivery.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Delivery kinds reported by the bus. Subscribe confirmations and other
// control frames reach the handler unfiltered; deciding what to fan out is
// the relay's job, not the adapter's.
const (
	DeliveryMessage     = "message"
	DeliverySubscribe   = "subscribe"
	DeliveryUnsubscribe = "unsubscribe"
)

// Delivery is one frame received from the bus.
type Delivery struct {
	Kind    string
	Channel string
	Payload string
}

// DeliveryHandler consumes bus deliveries. Handlers run on the bus reader
// goroutine and must not block indefinitely.
type DeliveryHandler func(Delivery)

// ErrBusClosed is returned by Publish and Subscribe after Close.
var ErrBusClosed = errors.New("bus is closed")

// Bus is the publish/subscribe transport the relay runs on. Publish is
// fire-and-forget from the relay's point of view; Subscribe installs a
// background listener that runs until Close.
type Bus interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string, handler DeliveryHandler) error
	Close() error
}

// RedisBus implements Bus on a Redis connection. One reader goroutine per
// subscription loops on the wire until Close cancels it; Close waits for
// the readers before releasing the client, and failures while shutting
// down individual sub-resources are logged so that one of them cannot
// prevent releasing the others.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger

	mu        sync.Mutex
	pubsubs   []*redis.PubSub
	readerCtx context.Context
	cancel    context.CancelFunc
	readers   sync.WaitGroup
	closed    bool
}

// NewRedisBus connects a bus adapter to the Redis server at addr
// (host:port). The connection is established lazily on first use.
func NewRedisBus(addr string, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger,
	}
}

// Publish sends payload to every subscriber of channel. The caller decides
// whether a failure matters; publishing a chat line must not tear down the
// sending session, so the relay logs and moves on.
func (b *RedisBus) Publish(ctx context.Context, channel, payload string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.mu.Unlock()

	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %q: %w", channel, err)
	}
	return nil
}

// Subscribe registers handler for every frame Redis emits on channel,
// including the initial subscription confirmation. The returned error is
// fatal: a relay cannot serve sessions without a working subscription.
func (b *RedisBus) Subscribe(ctx context.Context, channel string, handler DeliveryHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}

	pubsub := b.client.Subscribe(ctx, channel)

	// Force the SUBSCRIBE onto the wire so a broken bus fails setup here
	// instead of surfacing later inside the reader.
	confirmation, err := pubsub.Receive(ctx)
	if err != nil {
		if closeErr := pubsub.Close(); closeErr != nil {
			b.logger.Error("closing failed subscription", "channel", channel, "error", closeErr)
		}
		return fmt.Errorf("subscribe to %q: %w", channel, err)
	}

	if b.cancel == nil {
		b.readerCtx, b.cancel = context.WithCancel(context.Background())
	}
	readerCtx := b.readerCtx
	b.pubsubs = append(b.pubsubs, pubsub)

	b.readers.Add(1)
	go func() {
		defer b.readers.Done()
		handler(toDelivery(confirmation, channel))
		b.read(readerCtx, pubsub, channel, handler)
	}()
	return nil
}

// read loops on the subscription until the context is cancelled or the
// stream ends. Cancellation is observed within one read iteration.
func (b *RedisBus) read(ctx context.Context, pubsub *redis.PubSub, channel string, handler DeliveryHandler) {
	for {
		frame, err := pubsub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				b.logger.Debug("bus reader stopped", "channel", channel)
			} else {
				b.logger.Error("bus read failed", "channel", channel, "error", err)
			}
			return
		}
		handler(toDelivery(frame, channel))
	}
}

// Close cancels the reader goroutines, waits for them to finish, then
// releases the subscriptions and the client. Each sub-resource failure is
// logged individually; Close never propagates them. Calling Close twice
// does not hang.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel := b.cancel
	pubsubs := b.pubsubs
	b.pubsubs = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, pubsub := range pubsubs {
		if err := pubsub.Close(); err != nil {
			b.logger.Error("closing bus subscription failed", "error", err)
		}
	}
	b.readers.Wait()

	if err := b.client.Close(); err != nil {
		b.logger.Error("closing bus client failed", "error", err)
	}
	return nil
}

func toDelivery(frame interface{}, channel string) Delivery {
	switch f := frame.(type) {
	case *redis.Message:
		return Delivery{Kind: DeliveryMessage, Channel: f.Channel, Payload: f.Payload}
	case *redis.Subscription:
		return Delivery{Kind: f.Kind, Channel: f.Channel}
	case *redis.Pong:
		return Delivery{Kind: "pong", Channel: channel}
	default:
		return Delivery{Kind: "unknown", Channel: channel}
	}
}
