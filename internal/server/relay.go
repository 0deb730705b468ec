// Package server contains the relay engine that coordinates session
// lifecycle, bus publication, and local fan-out of bus deliveries.
package server

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultChannel is the bus channel shared by every relay process. There
// is no per-room partitioning in this version.
const DefaultChannel = "chat"

// Relay bridges local client connections and the shared bus. Inbound
// client envelopes become bus publications; every bus delivery is fanned
// out to each session in this process's registry. One Relay instance per
// process owns one Registry and one Bus; there is no package-level
// singleton.
type Relay struct {
	bus      Bus
	registry *Registry
	channel  string
	logger   *slog.Logger
}

// NewRelay creates a relay on the given bus. An empty channel selects
// DefaultChannel; a nil logger selects slog.Default().
func NewRelay(bus Bus, channel string, logger *slog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		bus:      bus,
		registry: NewRegistry(),
		channel:  channel,
		logger:   logger,
	}
}

// Start subscribes the relay to its bus channel and wires the fan-out
// path. A subscription failure is fatal: without a working subscription no
// session can be served, so the caller must not start accepting
// connections.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.bus.Subscribe(ctx, r.channel, r.dispatch); err != nil {
		return fmt.Errorf("relay start: %w", err)
	}
	r.logger.Info("relay subscribed to bus", "channel", r.channel)
	return nil
}

// Connect moves a freshly accepted session to the open state: it joins
// the registry under the default display name. Nothing is announced until
// the client sets a name.
func (r *Relay) Connect(sess *Session) {
	r.registry.Add(sess)
	r.logger.Info("session connected", "session", sess.ID, "sessions", r.registry.Len())
}

// HandleFrame processes one inbound frame from an open session. SetName
// updates the registry and announces the (re)named user; ChatMessage
// publishes the line under the sender's current name. A parse failure is
// returned to the caller, which tears the session down; publish failures
// are logged and never fail the session.
func (r *Relay) HandleFrame(ctx context.Context, sess *Session, raw []byte) error {
	envelope, err := ParseEnvelope(raw)
	if err != nil {
		return err
	}

	switch frame := envelope.(type) {
	case SetName:
		r.registry.SetName(sess.ID, frame.Name)
		r.publish(ctx, fmt.Sprintf("System: %s joined the chat", frame.Name))
	case ChatMessage:
		r.publish(ctx, fmt.Sprintf("%s: %s", r.registry.Name(sess.ID), frame.Text))
	}
	return nil
}

// Disconnect moves a session to the closed state: the name is looked up
// before removal clears it, the session leaves the registry, and the
// departure is announced. Calling Disconnect again for the same session is
// a no-op, so both the read pump and forced teardown may race to it
// without double-announcing.
func (r *Relay) Disconnect(ctx context.Context, sess *Session) {
	name := r.registry.Name(sess.ID)
	if !r.registry.Remove(sess.ID) {
		return
	}
	r.logger.Info("session disconnected", "session", sess.ID, "sessions", r.registry.Len())
	r.publish(ctx, fmt.Sprintf("System: %s left the chat", name))
}

// dispatch receives every bus delivery, control frames included, and fans
// out only real messages. Filtering control frames here rather than in
// the adapter keeps the Bus contract transport-shaped.
func (r *Relay) dispatch(d Delivery) {
	if d.Kind != DeliveryMessage {
		r.logger.Debug("ignoring bus control frame", "kind", d.Kind, "channel", d.Channel)
		return
	}
	r.fanOut(d.Payload)
}

// fanOut sends text to every session in a registry snapshot. A failed
// send is logged and skipped; one slow or dead connection never blocks
// delivery to the rest.
func (r *Relay) fanOut(text string) {
	for _, sess := range r.registry.Snapshot() {
		if err := sess.Sender.Send(text); err != nil {
			r.logger.Warn("dropping broadcast for session", "session", sess.ID, "error", err)
		}
	}
}

// publish sends text to the bus, swallowing failures. A chat line that
// could not be published must not crash the sender's connection.
func (r *Relay) publish(ctx context.Context, text string) {
	if err := r.bus.Publish(ctx, r.channel, text); err != nil {
		r.logger.Error("bus publish failed", "channel", r.channel, "error", err)
	}
}

// Shutdown force-closes every live session's transport and then closes
// the bus, waiting for its listener to stop. Session close failures are
// logged per connection so a stuck one cannot hold the rest hostage.
func (r *Relay) Shutdown() error {
	sessions := r.registry.Snapshot()
	for _, sess := range sessions {
		if err := sess.Sender.Close(); err != nil && !isExpectedCloseError(err) {
			r.logger.Warn("closing session failed", "session", sess.ID, "error", err)
		}
	}
	r.logger.Info("closed live sessions", "count", len(sessions))
	return r.bus.Close()
}
