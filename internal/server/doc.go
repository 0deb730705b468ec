// Package server implements the chat relay: WebSocket session handling,
// the inbound envelope codec, the per-process session registry, and the
// relay engine that bridges local connections to a shared pub/sub bus so
// that multiple server processes deliver one consistent broadcast stream.
//
// The implementation is organized into specialized files for configuration,
// the bus adapter, the registry, the relay, clients, routing, and HTTP
// handlers to keep the codebase maintainable and testable as the project
// grows.
package server
