// Package integration verifies graceful shutdown behavior: live
// connections are closed in bounded time and the bus is released.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plexrelay/chatrelay/internal/server"
)

func TestShutdownClosesClientConnections(t *testing.T) {
	rs := startRelayServer(t)

	conn := rs.dial(t, "ping")

	shutdownErr := make(chan error, 1)
	go func() {
		shutdownErr <- rs.relay.Shutdown()
	}()

	select {
	case err := <-shutdownErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay shutdown did not complete in time")
	}

	// The client observes the close in bounded time.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// The bus is released: publishing fails cleanly instead of hanging.
	require.ErrorIs(t, rs.bus.Publish(context.Background(), server.DefaultChannel, "x"), server.ErrBusClosed)
}

func TestHTTPServerTimeouts(t *testing.T) {
	srv := server.CreateServer(":0", nil)

	require.Equal(t, 15*time.Second, srv.ReadTimeout)
	require.Equal(t, 15*time.Second, srv.WriteTimeout)
	require.Equal(t, 60*time.Second, srv.IdleTimeout)
}
