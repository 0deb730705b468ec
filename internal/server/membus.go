package server

import (
	"context"
	"sync"
)

// MemoryBus is a process-local Bus. It backs single-process deployments
// where no Redis host is configured, and it gives tests a deterministic
// bus: Publish invokes subscribers synchronously on the caller's
// goroutine, in subscription order.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]DeliveryHandler
	closed   bool
}

// NewMemoryBus creates an in-process bus with no subscriptions.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers: make(map[string][]DeliveryHandler),
	}
}

// Publish delivers payload to every handler subscribed to channel.
// Publishing to a channel nobody subscribed to succeeds and goes nowhere,
// matching the pub/sub contract.
func (b *MemoryBus) Publish(_ context.Context, channel, payload string) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	handlers := append([]DeliveryHandler(nil), b.handlers[channel]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(Delivery{Kind: DeliveryMessage, Channel: channel, Payload: payload})
	}
	return nil
}

// Subscribe registers handler on channel. Like the Redis adapter it hands
// the handler an initial subscription confirmation frame, so relay-side
// control-frame filtering is exercised on this bus too.
func (b *MemoryBus) Subscribe(_ context.Context, channel string, handler DeliveryHandler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.handlers[channel] = append(b.handlers[channel], handler)
	b.mu.Unlock()

	handler(Delivery{Kind: DeliverySubscribe, Channel: channel})
	return nil
}

// Close drops all subscriptions. Further Publish and Subscribe calls
// return ErrBusClosed; a second Close is a no-op.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}
