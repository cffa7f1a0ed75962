package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/parley/chat-app/internal/protocol"
)

type persistedMessage struct {
	content  string
	senderID string
	chatID   string
}

// fakeMessageStore records persisted messages on a channel so tests can
// wait for the detached persistence task.
type fakeMessageStore struct {
	ch  chan persistedMessage
	err error
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{ch: make(chan persistedMessage, 8)}
}

func (s *fakeMessageStore) CreateMessage(ctx context.Context, content, senderID, chatID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.ch <- persistedMessage{content: content, senderID: senderID, chatID: chatID}
	return "m1", nil
}

type blockedLimiter struct{}

func (blockedLimiter) AllowMessage(ctx context.Context, userID string) bool { return false }

func newTestHandler(store MessageStore, limiter MessageLimiter) (*Handler, *Registry, *Presence) {
	reg := NewRegistry()
	pres := NewPresence()
	fan := NewFanout(reg)
	return NewHandler(reg, pres, fan, store, limiter), reg, pres
}

func TestHandler_NewMessageBroadcastsAndPersists(t *testing.T) {
	store := newFakeMessageStore()
	h, _, _ := newTestHandler(store, nil)

	connA := newFakeConn()
	connB := newFakeConn()
	h.Connect("u1", connA)
	h.Connect("u2", connB)

	h.NewMessage(User{ID: "u1", Name: "Aisha"}, protocol.NewMessageEvent{
		ChatID:  "c1",
		Members: []string{"u1", "u2"},
		Message: "hi",
	})

	// Both members receive new-message and new-message-alert; the sender is
	// not excluded.
	for _, conn := range []*fakeConn{connA, connB} {
		sawMessage, sawAlert := false, false
		for i := 0; i < 2; i++ {
			event, data := waitFrame(t, conn)
			switch event {
			case protocol.EventNewMessage:
				sawMessage = true
				var payload protocol.NewMessagePayload
				if err := json.Unmarshal(data, &payload); err != nil {
					t.Fatalf("bad new-message payload: %v", err)
				}
				if payload.ChatID != "c1" {
					t.Errorf("expected chatId c1, got %q", payload.ChatID)
				}
				if payload.Message.Content != "hi" {
					t.Errorf("expected content hi, got %q", payload.Message.Content)
				}
				if payload.Message.Sender.ID != "u1" || payload.Message.Sender.Name != "Aisha" {
					t.Errorf("unexpected sender: %+v", payload.Message.Sender)
				}
				if payload.Message.ID == "" || payload.Message.CreatedAt == "" {
					t.Error("transient record missing generated id or timestamp")
				}
			case protocol.EventNewMessageAlert:
				sawAlert = true
			default:
				t.Fatalf("unexpected event %q", event)
			}
		}
		if !sawMessage || !sawAlert {
			t.Fatalf("expected both new-message and new-message-alert (message=%v alert=%v)", sawMessage, sawAlert)
		}
	}

	select {
	case p := <-store.ch:
		if p.content != "hi" || p.senderID != "u1" || p.chatID != "c1" {
			t.Fatalf("unexpected persisted record: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was never persisted")
	}
}

func TestHandler_NewMessageBroadcastSurvivesPersistenceFailure(t *testing.T) {
	store := newFakeMessageStore()
	store.err = errors.New("datastore unavailable")
	h, _, _ := newTestHandler(store, nil)

	conn := newFakeConn()
	h.Connect("u2", conn)

	h.NewMessage(User{ID: "u1", Name: "Aisha"}, protocol.NewMessageEvent{
		ChatID:  "c1",
		Members: []string{"u2"},
		Message: "still delivered",
	})

	event, _ := waitFrame(t, conn)
	if event != protocol.EventNewMessage {
		t.Fatalf("expected new-message despite storage failure, got %q", event)
	}
}

func TestHandler_NewMessageRateLimited(t *testing.T) {
	store := newFakeMessageStore()
	h, _, _ := newTestHandler(store, blockedLimiter{})

	conn := newFakeConn()
	h.Connect("u2", conn)

	h.NewMessage(User{ID: "u1", Name: "Aisha"}, protocol.NewMessageEvent{
		ChatID:  "c1",
		Members: []string{"u2"},
		Message: "spam",
	})

	assertNoFrame(t, conn)
}

func TestHandler_TypingDoesNotExcludeSender(t *testing.T) {
	h, _, _ := newTestHandler(newFakeMessageStore(), nil)

	sender := newFakeConn()
	other := newFakeConn()
	h.Connect("u1", sender)
	h.Connect("u2", other)

	h.Typing(protocol.EventStartTyping, protocol.TypingEvent{
		ChatID:  "c1",
		Members: []string{"u1", "u2"},
	})

	for _, conn := range []*fakeConn{sender, other} {
		event, data := waitFrame(t, conn)
		if event != protocol.EventStartTyping {
			t.Fatalf("expected start-typing, got %q", event)
		}
		var payload protocol.ChatAlertPayload
		if err := json.Unmarshal(data, &payload); err != nil || payload.ChatID != "c1" {
			t.Fatalf("unexpected typing payload: %s (err=%v)", data, err)
		}
	}
}

func TestHandler_JoinAndDisconnectPresenceFlow(t *testing.T) {
	h, reg, _ := newTestHandler(newFakeMessageStore(), nil)

	connA := newFakeConn()
	connB := newFakeConn()
	h.Connect("u1", connA)
	h.Connect("u2", connB)

	h.ChatJoined(protocol.ChatPresenceEvent{UserID: "u1", Members: []string{"u1", "u2"}})

	for _, conn := range []*fakeConn{connA, connB} {
		event, data := waitFrame(t, conn)
		if event != protocol.EventOnlineUsers {
			t.Fatalf("expected online-users, got %q", event)
		}
		var online []string
		if err := json.Unmarshal(data, &online); err != nil {
			t.Fatalf("bad online-users payload: %v", err)
		}
		if len(online) != 1 || online[0] != "u1" {
			t.Fatalf("expected snapshot [u1], got %v", online)
		}
	}

	// u1 disconnects: unregistered, absent, and the update is broadcast to
	// every remaining connection.
	h.Disconnect("u1")

	if got := reg.Resolve([]string{"u1"})[0]; got != nil {
		t.Fatal("expected u1 unregistered after disconnect")
	}

	event, data := waitFrame(t, connB)
	if event != protocol.EventOnlineUsers {
		t.Fatalf("expected online-users, got %q", event)
	}
	var online []string
	if err := json.Unmarshal(data, &online); err != nil {
		t.Fatalf("bad online-users payload: %v", err)
	}
	for _, id := range online {
		if id == "u1" {
			t.Fatalf("disconnected user still present: %v", online)
		}
	}
}

func TestHandler_ChatLeftRemovesFromSnapshot(t *testing.T) {
	h, _, _ := newTestHandler(newFakeMessageStore(), nil)

	conn := newFakeConn()
	h.Connect("u2", conn)

	h.ChatJoined(protocol.ChatPresenceEvent{UserID: "u1", Members: []string{"u2"}})
	waitFrame(t, conn)

	h.ChatLeft(protocol.ChatPresenceEvent{UserID: "u1", Members: []string{"u2"}})
	event, data := waitFrame(t, conn)
	if event != protocol.EventOnlineUsers {
		t.Fatalf("expected online-users, got %q", event)
	}
	var online []string
	if err := json.Unmarshal(data, &online); err != nil {
		t.Fatalf("bad online-users payload: %v", err)
	}
	if len(online) != 0 {
		t.Fatalf("expected empty snapshot, got %v", online)
	}
}
