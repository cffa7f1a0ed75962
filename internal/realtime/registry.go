// Package realtime implements the in-process presence and fanout layer: the
// mapping from authenticated user ids to live socket connections, the set of
// users currently viewing a chat, and the delivery of named events to the
// connections of a chat's members. All state lives in this process; nothing
// here coordinates across server instances.
package realtime

import "sync"

// Conn is a live connection handle capable of receiving an encoded frame.
// Implemented by *ws.Connection; tests substitute in-memory fakes.
type Conn interface {
	WriteMessage(data []byte) error
}

// Registry is a thread-safe map from user id to that user's live connection.
// Each user has at most one registered connection: a second connection from
// the same user silently replaces the first, and the replaced handle is no
// longer reachable through the registry even though it may still be open.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]Conn
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]Conn)}
}

// Register binds a connection to a user id, unconditionally overwriting any
// existing binding for that user.
func (r *Registry) Register(userID string, conn Conn) {
	r.mu.Lock()
	r.byUser[userID] = conn
	r.mu.Unlock()
}

// Unregister removes the binding for a user id. It is a no-op when the user
// has no binding. The removal is keyed by id alone: if the user reconnected
// and the binding now points at a newer connection, that newer binding is
// removed too.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	delete(r.byUser, userID)
	r.mu.Unlock()
}

// Resolve maps each input user id to its registered connection, or nil when
// the user has none. Output order matches input order and duplicate ids
// yield duplicate entries; callers that need distinct destinations must
// de-duplicate themselves. Resolve never mutates registry state — an offline
// member is an expected outcome, not an error.
func (r *Registry) Resolve(userIDs []string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, len(userIDs))
	for i, id := range userIDs {
		conns[i] = r.byUser[id] // nil when absent
	}
	return conns
}

// Conns returns a snapshot of every registered connection, for broadcasts
// that target all connected users rather than a member list.
func (r *Registry) Conns() []Conn {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.byUser))
	for _, c := range r.byUser {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	return conns
}

// Count returns the number of users with a registered connection.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.byUser)
	r.mu.RUnlock()
	return n
}
