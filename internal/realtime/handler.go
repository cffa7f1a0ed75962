package realtime

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/parley/chat-app/internal/metrics"
	"github.com/parley/chat-app/internal/protocol"
)

// MessageStore is the narrow persistence interface the handler needs: write
// one message document and return its id. The Mongo-backed store implements
// it; tests use fakes.
type MessageStore interface {
	CreateMessage(ctx context.Context, content, senderID, chatID string) (string, error)
}

// MessageLimiter throttles message sends per user. Implementations fail
// open: when the backing store is unreachable the send is allowed.
type MessageLimiter interface {
	AllowMessage(ctx context.Context, userID string) bool
}

// User identifies the authenticated account bound to a connection.
type User struct {
	ID   string
	Name string
}

// Handler reacts to inbound socket events from authenticated connections,
// orchestrating the registry, presence set, fanout engine, and message
// persistence. A connection only reaches the Handler after authentication;
// after Disconnect no further events are processed for it.
type Handler struct {
	registry *Registry
	presence *Presence
	fanout   *Fanout
	store    MessageStore
	limiter  MessageLimiter // nil disables throttling

	persistTimeout time.Duration
}

// NewHandler wires a Handler to its collaborators. limiter may be nil.
func NewHandler(registry *Registry, presence *Presence, fanout *Fanout, store MessageStore, limiter MessageLimiter) *Handler {
	return &Handler{
		registry:       registry,
		presence:       presence,
		fanout:         fanout,
		store:          store,
		limiter:        limiter,
		persistTimeout: 5 * time.Second,
	}
}

// Connect binds a freshly authenticated connection to its user id. A user
// connecting twice keeps only the newer binding.
func (h *Handler) Connect(userID string, conn Conn) {
	h.registry.Register(userID, conn)
}

// NewMessage broadcasts a chat message to the supplied members and persists
// it. The broadcast happens first and carries a transient record with a
// generated id and the current timestamp; persistence runs as a detached
// task whose failure is logged, not retried, and never undoes the
// broadcast. Clients can therefore see a message moments before it is
// durably stored.
func (h *Handler) NewMessage(sender User, ev protocol.NewMessageEvent) {
	metrics.EventsTotal.WithLabelValues(protocol.EventNewMessage).Inc()

	if h.limiter != nil && !h.limiter.AllowMessage(context.Background(), sender.ID) {
		log.Printf("realtime: message from user=%s dropped (rate limited)", sender.ID)
		return
	}

	rt := protocol.RealtimeMessage{
		ID:      uuid.NewString(),
		Content: ev.Message,
		Sender: protocol.MessageSender{
			ID:   sender.ID,
			Name: sender.Name,
		},
		ChatID:    ev.ChatID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	h.fanout.Deliver(ev.Members, protocol.EventNewMessage, protocol.NewMessagePayload{
		ChatID:  ev.ChatID,
		Message: rt,
	})
	h.fanout.Deliver(ev.Members, protocol.EventNewMessageAlert, protocol.ChatAlertPayload{
		ChatID: ev.ChatID,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.persistTimeout)
		defer cancel()
		if _, err := h.store.CreateMessage(ctx, ev.Message, sender.ID, ev.ChatID); err != nil {
			metrics.MessagesPersisted.WithLabelValues("error").Inc()
			log.Printf("realtime: failed to persist message chat=%s sender=%s: %v", ev.ChatID, sender.ID, err)
			return
		}
		metrics.MessagesPersisted.WithLabelValues("ok").Inc()
	}()
}

// Typing relays a start-typing or stop-typing event to the chat's members.
// The sender's own connection is not excluded: when it appears in the
// member list it receives the event too, and the client filters locally.
func (h *Handler) Typing(event string, ev protocol.TypingEvent) {
	metrics.EventsTotal.WithLabelValues(event).Inc()
	h.fanout.Deliver(ev.Members, event, protocol.ChatAlertPayload{ChatID: ev.ChatID})
}

// ChatJoined marks the user present and pushes the updated online-users
// snapshot to the chat's members.
func (h *Handler) ChatJoined(ev protocol.ChatPresenceEvent) {
	metrics.EventsTotal.WithLabelValues(protocol.EventChatJoined).Inc()
	h.presence.MarkPresent(ev.UserID)
	snapshot := h.presence.Snapshot()
	metrics.OnlineUsers.Set(float64(len(snapshot)))
	h.fanout.Deliver(ev.Members, protocol.EventOnlineUsers, snapshot)
}

// ChatLeft marks the user absent and pushes the updated online-users
// snapshot to the chat's members.
func (h *Handler) ChatLeft(ev protocol.ChatPresenceEvent) {
	metrics.EventsTotal.WithLabelValues(protocol.EventChatLeft).Inc()
	h.presence.MarkAbsent(ev.UserID)
	snapshot := h.presence.Snapshot()
	metrics.OnlineUsers.Set(float64(len(snapshot)))
	h.fanout.Deliver(ev.Members, protocol.EventOnlineUsers, snapshot)
}

// Disconnect removes the user's registry binding and presence entry, then
// broadcasts the updated online-users snapshot to every remaining
// connection. There is no member list at disconnect time, so the scope is
// global rather than per-chat. The id used is the one captured at connect
// time; if the user reconnected since, the newer binding is removed too.
func (h *Handler) Disconnect(userID string) {
	h.registry.Unregister(userID)
	h.presence.MarkAbsent(userID)
	snapshot := h.presence.Snapshot()
	metrics.OnlineUsers.Set(float64(len(snapshot)))
	h.fanout.Broadcast(protocol.EventOnlineUsers, snapshot)
}
