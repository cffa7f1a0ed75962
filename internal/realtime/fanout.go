package realtime

import (
	"log"

	"github.com/parley/chat-app/internal/metrics"
	"github.com/parley/chat-app/internal/protocol"
)

// Fanout delivers named events to the live connections of a set of users.
// It is the single broadcast primitive shared by the socket handler and the
// REST layer. Delivery is fire-and-forget: a failed send to one connection
// is logged and never affects the others or the caller.
type Fanout struct {
	registry *Registry
}

// NewFanout creates a Fanout that resolves destinations through the given
// registry.
func NewFanout(registry *Registry) *Fanout {
	return &Fanout{registry: registry}
}

// Deliver encodes the event once and sends it to the connection of every
// member that currently has one. Members without a connection are skipped —
// being offline is expected. Duplicate member ids, and distinct ids that
// resolve to the same connection, receive the frame exactly once.
func (f *Fanout) Deliver(members []string, event string, data interface{}) {
	frame, err := protocol.NewServerEvent(event, data)
	if err != nil {
		log.Printf("realtime: failed to encode %q event: %v", event, err)
		return
	}

	seen := make(map[Conn]struct{}, len(members))
	for _, conn := range f.registry.Resolve(members) {
		if conn == nil {
			continue
		}
		if _, dup := seen[conn]; dup {
			continue
		}
		seen[conn] = struct{}{}
		f.send(conn, event, frame)
	}
}

// Broadcast sends the event to every registered connection. Used for
// notifications with no member list, such as the online-users update after
// a disconnect.
func (f *Fanout) Broadcast(event string, data interface{}) {
	frame, err := protocol.NewServerEvent(event, data)
	if err != nil {
		log.Printf("realtime: failed to encode %q event: %v", event, err)
		return
	}

	for _, conn := range f.registry.Conns() {
		f.send(conn, event, frame)
	}
}

// send writes the frame from its own goroutine so a slow or dead connection
// never stalls the caller or the other destinations. Once issued the send is
// not cancellable.
func (f *Fanout) send(conn Conn, event string, frame []byte) {
	go func() {
		if err := conn.WriteMessage(frame); err != nil {
			metrics.FanoutDeliveries.WithLabelValues("failed").Inc()
			log.Printf("realtime: %q delivery failed: %v", event, err)
			return
		}
		metrics.FanoutDeliveries.WithLabelValues("sent").Inc()
	}()
}
