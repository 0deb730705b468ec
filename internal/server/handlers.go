// Package server exposes HTTP handlers, including the WebSocket upgrade,
// health check, and the built-in chat page.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler returns the handler that upgrades HTTP requests to
// WebSocket sessions on the given relay. Each accepted connection gets a
// fresh session and its own pump goroutines; the session lives until the
// connection ends, independent of the upgrade request's context.
func WebSocketHandler(relay *Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, relay, r.RemoteAddr)
		go client.Run(context.Background())
	}
}

// HealthHandler provides a simple health check endpoint that responds
// with a plain text message indicating the relay is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay is running!")
}

// ChatPageHandler serves a minimal HTML chat client for exercising the
// relay by hand: set a name, send messages, watch the broadcast stream.
func ChatPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 240px; padding: 5px; margin-right: 5px; }
        button { padding: 5px 15px; cursor: pointer; }
    </style>
</head>
<body>
    <h1>Chat Relay</h1>
    <div>
        <input type="text" id="nameInput" placeholder="Display name...">
        <button onclick="setName()">Set name</button>
    </div>
    <div id="messages"></div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>

    <script>
        const messagesDiv = document.getElementById('messages');
        const ws = new WebSocket('ws://' + location.host + '/ws');

        function addLine(line) {
            const el = document.createElement('div');
            el.textContent = line;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        ws.onmessage = function(event) { addLine(event.data); };
        ws.onclose = function() { addLine('-- disconnected --'); };

        function setName() {
            const name = document.getElementById('nameInput').value;
            ws.send(JSON.stringify({type: 'set_name', name: name}));
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            ws.send(JSON.stringify({type: 'message', text: input.value}));
            input.value = '';
        }

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Warn("writing chat page failed", "error", err)
	}
}
