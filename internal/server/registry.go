// Package server tracks live sessions in an in-memory registry. The
// registry is per process; cross-process consistency is approximate, by
// design, via the bus.
package server

import "sync"

// AnonymousName is the display name assigned to a session until the client
// sends a set_name frame.
const AnonymousName = "Anonymous"

// Sender is the transport-facing half of a session: a best-effort text send
// and a close for forced teardown. Implemented by Client for WebSocket
// connections and by stubs in tests.
type Sender interface {
	Send(text string) error
	Close() error
}

// Session is one live client connection. The ID is stable for the
// connection's lifetime and keys the registry; no two live sessions share
// an ID.
type Session struct {
	ID     string
	Sender Sender
}

type registryEntry struct {
	session *Session
	name    string
}

// Registry maps session IDs to their connection and display name for one
// process. All methods are safe for concurrent use; Snapshot returns a
// point-in-time view so fan-out iteration never observes a mutation
// mid-flight.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	order   []string
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
	}
}

// Add registers a session under the default display name. Re-adding an
// existing ID replaces the connection handle without duplicating the
// session in snapshot order.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[s.ID]; ok {
		existing.session = s
		return
	}
	r.entries[s.ID] = &registryEntry{session: s, name: AnonymousName}
	r.order = append(r.order, s.ID)
}

// Remove deletes a session. Removing an absent ID is a no-op returning
// false, which lets teardown paths stay idempotent.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// SetName assigns a display name to a live session. Unknown IDs are
// ignored; a session that disconnected mid-rename simply loses the rename.
func (r *Registry) SetName(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[id]; ok {
		entry.name = name
	}
}

// Name returns the session's display name, or AnonymousName when the name
// was never set or the ID is not registered.
func (r *Registry) Name(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.entries[id]; ok {
		return entry.name
	}
	return AnonymousName
}

// Snapshot returns the live sessions in registration order. The returned
// slice is a copy; concurrent Add and Remove calls do not affect an
// iteration already in progress.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		sessions = append(sessions, r.entries[id].session)
	}
	return sessions
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
