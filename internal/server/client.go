// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second
	// pongWait bounds how long the peer may stay silent.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = 54 * time.Second
	// sendBufferSize is the per-connection outbound queue. A client that
	// falls this far behind starts losing broadcasts instead of blocking
	// the fan-out.
	sendBufferSize = 256
)

// Errors returned by Client.Send when a broadcast cannot be queued.
var (
	ErrClientClosed   = errors.New("client is closed")
	ErrSendBufferFull = errors.New("send buffer is full")
)

// Client is the transport shim for one WebSocket connection. It owns the
// read and write pumps, enforces the configured message size and rate
// limits, and exposes the Sender primitives the relay fans out through.
type Client struct {
	conn    *websocket.Conn
	relay   *Relay
	session *Session
	send    chan string
	done    chan struct{}
	addr    string
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient wraps an accepted WebSocket connection in a transport shim
// with a fresh session identity. The configured read limit and rate limit
// are captured at construction time.
func NewClient(conn *websocket.Conn, relay *Relay, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	c := &Client{
		conn:           conn,
		relay:          relay,
		send:           make(chan string, sendBufferSize),
		done:           make(chan struct{}),
		addr:           addr,
		logger:         relay.logger,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
	c.session = &Session{ID: uuid.NewString(), Sender: c}
	return c
}

// Send queues text for delivery to the peer without blocking the caller.
// It fails once the client is closed or when the outbound buffer is full;
// the relay logs such failures and continues fanning out to other
// sessions.
func (c *Client) Send(text string) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- text:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

// Close tears down the connection. It is safe to call from any goroutine
// and any number of times; pumps observe the done channel and exit.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Run registers the session with the relay, starts the write pump, and
// then reads inbound frames until the connection ends. It returns after
// the session has been disconnected and the transport closed, so callers
// get synchronous teardown.
func (c *Client) Run(ctx context.Context) {
	c.relay.Connect(c.session)

	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.relay.Disconnect(ctx, c.session)
		if err := c.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("closing connection failed", "addr", c.addr, "error", err)
		}
	}()

	c.setupReadDeadlines()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadEnd(err)
			return
		}

		if c.rateLimiter != nil && !c.rateLimiter.allow() {
			c.logger.Warn("rate limit exceeded, discarding frame",
				"addr", c.addr, "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
			continue
		}

		if err := c.relay.HandleFrame(ctx, c.session, raw); err != nil {
			c.logger.Warn("terminating session after protocol violation",
				"session", c.session.ID, "addr", c.addr, "error", err)
			return
		}
	}
}

// setupReadDeadlines arms the read deadline and keeps it armed via the
// pong handler, so a silent peer is detected within pongWait.
func (c *Client) setupReadDeadlines() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("setting read deadline failed", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logReadEnd classifies why the read loop ended. Clean closes and the
// usual network teardown noise log at debug; anything else is surfaced.
func (c *Client) logReadEnd(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("frame exceeded maximum size", "addr", c.addr, "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Debug("client disconnected", "addr", c.addr, "error", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.logger.Debug("connection closed", "addr", c.addr, "error", err)
	default:
		c.logger.Warn("websocket read failed", "addr", c.addr, "error", err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("closing connection failed", "addr", c.addr, "error", err)
		}
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case text := <-c.send:
			if err := c.writeText(text); err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Warn("websocket write failed", "addr", c.addr, "error", err)
				}
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Warn("websocket ping failed", "addr", c.addr, "error", err)
				}
				return
			}
		}
	}
}

// writeText delivers one broadcast line as one text frame. Each bus
// message maps to exactly one frame on the wire.
func (c *Client) writeText(text string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// isExpectedCloseError reports whether an error is the ordinary noise of a
// connection being torn down.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
