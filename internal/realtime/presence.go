package realtime

import (
	"sort"
	"sync"
)

// Presence is the thread-safe set of user ids currently viewing a chat.
// Membership is independent of the connection registry: a connected user is
// not present until they signal chat-joined, and a user whose connection was
// replaced can linger as present until an explicit chat-left or disconnect.
type Presence struct {
	mu    sync.Mutex
	users map[string]struct{}
}

// NewPresence creates an empty presence set.
func NewPresence() *Presence {
	return &Presence{users: make(map[string]struct{})}
}

// MarkPresent adds a user to the set. Adding an existing member is a no-op.
func (p *Presence) MarkPresent(userID string) {
	p.mu.Lock()
	p.users[userID] = struct{}{}
	p.mu.Unlock()
}

// MarkAbsent removes a user from the set. Removing a non-member is a no-op.
func (p *Presence) MarkAbsent(userID string) {
	p.mu.Lock()
	delete(p.users, userID)
	p.mu.Unlock()
}

// Snapshot returns the current members sorted lexicographically, ready for
// an online-users broadcast.
func (p *Presence) Snapshot() []string {
	p.mu.Lock()
	out := make([]string, 0, len(p.users))
	for id := range p.users {
		out = append(out, id)
	}
	p.mu.Unlock()

	sort.Strings(out)
	return out
}
