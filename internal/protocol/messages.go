// Package protocol defines the socket event names and payload structures
// exchanged between the web client and the server. Every frame is JSON with
// an "event" discriminator and an event-specific "data" object.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope holds the event name and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// UnmarshalJSON implements json.Unmarshaler. It extracts the "event" field
// and keeps the "data" payload raw so it can be decoded later into the
// appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var partial struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Event == "" {
		return fmt.Errorf("protocol: missing or empty \"event\" field")
	}
	e.Event = partial.Event
	e.Data = partial.Data
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server event payloads
// ---------------------------------------------------------------------------

// NewMessageEvent carries a chat message for broadcast and persistence.
// Members is the full member list of the chat, supplied by the client; the
// server does not derive it.
type NewMessageEvent struct {
	ChatID  string   `json:"chatId"`
	Members []string `json:"members"`
	Message string   `json:"message"`
}

// TypingEvent signals that the sender started or stopped typing in a chat.
type TypingEvent struct {
	ChatID  string   `json:"chatId"`
	Members []string `json:"members"`
}

// ChatPresenceEvent signals that a user entered or left a chat view.
type ChatPresenceEvent struct {
	UserID  string   `json:"userId"`
	Members []string `json:"members"`
}

// PingEvent is a client-initiated keepalive.
type PingEvent struct{}

// ---------------------------------------------------------------------------
// Server -> Client event payloads
// ---------------------------------------------------------------------------

// MessageSender identifies the author of a broadcast message.
type MessageSender struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// AttachmentRef points a client at a stored file.
type AttachmentRef struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// RealtimeMessage is the transient message record broadcast to chat members
// the moment a message is sent. For text messages its ID is generated
// server-side and is not the persisted document id; clients only use it for
// list keys. Attachment messages carry the file references and no content.
type RealtimeMessage struct {
	ID          string          `json:"_id"`
	Content     string          `json:"content"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	Sender      MessageSender   `json:"sender"`
	ChatID      string          `json:"chat"`
	CreatedAt   string          `json:"createdAt"`
}

// NewMessagePayload is the data object for the new-message event.
type NewMessagePayload struct {
	ChatID  string          `json:"chatId"`
	Message RealtimeMessage `json:"message"`
}

// ChatAlertPayload is the data object for new-message-alert and the typing
// events: just the chat the event refers to.
type ChatAlertPayload struct {
	ChatID string `json:"chatId"`
}

// ErrorPayload is sent to a client whose frame could not be processed.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientEvent parses raw socket bytes into a typed client event. It
// returns the event name, the decoded struct, and an error for unknown
// events or payloads missing required fields. Validation happens here so a
// malformed frame from one client never reaches the handlers.
func ParseClientEvent(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse event: %w", err)
	}

	switch env.Event {
	case EventNewMessage:
		var m NewMessageEvent
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		if m.ChatID == "" || m.Message == "" {
			return env.Event, nil, missingErr(env.Event, "chatId and message")
		}
		if len(m.Members) == 0 {
			return env.Event, nil, missingErr(env.Event, "members")
		}
		return env.Event, m, nil

	case EventStartTyping, EventStopTyping:
		var m TypingEvent
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		if m.ChatID == "" {
			return env.Event, nil, missingErr(env.Event, "chatId")
		}
		return env.Event, m, nil

	case EventChatJoined, EventChatLeft:
		var m ChatPresenceEvent
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return env.Event, nil, decodeErr(env.Event, err)
		}
		if m.UserID == "" {
			return env.Event, nil, missingErr(env.Event, "userId")
		}
		return env.Event, m, nil

	case EventPing:
		return env.Event, PingEvent{}, nil

	default:
		return env.Event, nil, fmt.Errorf("protocol: unknown client event: %q", env.Event)
	}
}

// NewServerEvent encodes a server-to-client frame: the event name plus an
// arbitrary data payload (object or array).
func NewServerEvent(event string, data interface{}) ([]byte, error) {
	out, err := json.Marshal(struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data,omitempty"`
	}{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal %q event: %w", event, err)
	}
	return out, nil
}

func decodeErr(event string, err error) error {
	return fmt.Errorf("protocol: failed to decode %q payload: %w", event, err)
}

func missingErr(event, fields string) error {
	return fmt.Errorf("protocol: %q payload missing required %s", event, fields)
}
