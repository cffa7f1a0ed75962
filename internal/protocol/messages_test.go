package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid new-message event
// ---------------------------------------------------------------------------

func TestParseClientEvent_NewMessage(t *testing.T) {
	input := []byte(`{"event":"new-message","data":{"chatId":"c1","members":["u1","u2"],"message":"hi"}}`)

	event, msg, err := ParseClientEvent(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event != EventNewMessage {
		t.Fatalf("expected event %q, got %q", EventNewMessage, event)
	}

	nm, ok := msg.(NewMessageEvent)
	if !ok {
		t.Fatalf("expected NewMessageEvent, got %T", msg)
	}
	if nm.ChatID != "c1" {
		t.Errorf("expected chatId %q, got %q", "c1", nm.ChatID)
	}
	if nm.Message != "hi" {
		t.Errorf("expected message %q, got %q", "hi", nm.Message)
	}
	if len(nm.Members) != 2 || nm.Members[0] != "u1" || nm.Members[1] != "u2" {
		t.Errorf("unexpected members: %v", nm.Members)
	}
}

// ---------------------------------------------------------------------------
// Test: Required-field validation per event
// ---------------------------------------------------------------------------

func TestParseClientEvent_MissingFields(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"new-message without text", `{"event":"new-message","data":{"chatId":"c1","members":["u1"]}}`},
		{"new-message without chatId", `{"event":"new-message","data":{"members":["u1"],"message":"hi"}}`},
		{"new-message without members", `{"event":"new-message","data":{"chatId":"c1","message":"hi"}}`},
		{"start-typing without chatId", `{"event":"start-typing","data":{"members":["u1"]}}`},
		{"chat-joined without userId", `{"event":"chat-joined","data":{"members":["u1"]}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := ParseClientEvent([]byte(tc.input)); err == nil {
				t.Fatalf("expected validation error for %s", tc.input)
			}
		})
	}
}

func TestParseClientEvent_TypingAndPresence(t *testing.T) {
	event, msg, err := ParseClientEvent([]byte(`{"event":"stop-typing","data":{"chatId":"c2","members":["u1","u3"]}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event != EventStopTyping {
		t.Fatalf("expected %q, got %q", EventStopTyping, event)
	}
	if tm := msg.(TypingEvent); tm.ChatID != "c2" || len(tm.Members) != 2 {
		t.Errorf("unexpected typing payload: %+v", tm)
	}

	event, msg, err = ParseClientEvent([]byte(`{"event":"chat-left","data":{"userId":"u1","members":["u1","u2"]}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event != EventChatLeft {
		t.Fatalf("expected %q, got %q", EventChatLeft, event)
	}
	if pm := msg.(ChatPresenceEvent); pm.UserID != "u1" {
		t.Errorf("unexpected presence payload: %+v", pm)
	}
}

func TestParseClientEvent_UnknownEvent(t *testing.T) {
	_, _, err := ParseClientEvent([]byte(`{"event":"self-destruct","data":{}}`))
	if err == nil {
		t.Fatal("expected error for unknown event")
	}
	if !strings.Contains(err.Error(), "unknown client event") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseClientEvent_MissingEventField(t *testing.T) {
	_, _, err := ParseClientEvent([]byte(`{"data":{"chatId":"c1"}}`))
	if err == nil {
		t.Fatal("expected error for missing event field")
	}
}

// ---------------------------------------------------------------------------
// Test: Server event encoding
// ---------------------------------------------------------------------------

func TestNewServerEvent_ObjectPayload(t *testing.T) {
	out, err := NewServerEvent(EventNewMessageAlert, ChatAlertPayload{ChatID: "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Event string `json:"event"`
		Data  struct {
			ChatID string `json:"chatId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Event != EventNewMessageAlert {
		t.Errorf("expected event %q, got %q", EventNewMessageAlert, decoded.Event)
	}
	if decoded.Data.ChatID != "c1" {
		t.Errorf("expected chatId %q, got %q", "c1", decoded.Data.ChatID)
	}
}

func TestNewServerEvent_ArrayPayload(t *testing.T) {
	out, err := NewServerEvent(EventOnlineUsers, []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Event string   `json:"event"`
		Data  []string `json:"data"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Event != EventOnlineUsers {
		t.Errorf("expected event %q, got %q", EventOnlineUsers, decoded.Event)
	}
	if len(decoded.Data) != 2 {
		t.Errorf("expected 2 online users, got %v", decoded.Data)
	}
}
