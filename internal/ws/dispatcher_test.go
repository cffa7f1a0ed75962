package ws

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"

	"github.com/parley/chat-app/internal/protocol"
)

// newPipeConnection returns a Connection writing into one end of a net.Pipe
// and a channel yielding the frames a client would receive on the other.
func newPipeConnection(t *testing.T) (*Connection, <-chan []byte) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})

	frames := make(chan []byte, 8)
	go func() {
		for {
			data, err := wsutil.ReadServerText(client)
			if err != nil {
				return
			}
			frames <- data
		}
	}()

	return &Connection{ID: "test-conn", UserID: "u1", Conn: server}, frames
}

func readFrame(t *testing.T, frames <-chan []byte) (string, json.RawMessage) {
	t.Helper()
	select {
	case data := <-frames:
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("bad frame %s: %v", data, err)
		}
		return frame.Event, frame.Data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame")
		return "", nil
	}
}

func TestDispatcherRoutesRegisteredEvent(t *testing.T) {
	conn, _ := newPipeConnection(t)
	d := NewEventDispatcher()

	var got protocol.TypingEvent
	done := make(chan struct{})
	d.Register(protocol.EventStartTyping, func(c *Connection, msg interface{}) {
		got = msg.(protocol.TypingEvent)
		close(done)
	})

	d.Dispatch(conn, []byte(`{"event":"start-typing","data":{"chatId":"c1","members":["u1","u2"]}}`))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
	if got.ChatID != "c1" || len(got.Members) != 2 {
		t.Errorf("unexpected event payload: %+v", got)
	}
}

func TestDispatcherAnswersPing(t *testing.T) {
	conn, frames := newPipeConnection(t)
	d := NewEventDispatcher()

	before := conn.LastPing
	d.Dispatch(conn, []byte(`{"event":"ping","data":{}}`))

	event, _ := readFrame(t, frames)
	if event != protocol.EventPong {
		t.Fatalf("expected pong, got %q", event)
	}
	if !conn.LastPing.After(before) {
		t.Error("expected LastPing to advance")
	}
}

func TestDispatcherRejectsMalformedFrame(t *testing.T) {
	conn, frames := newPipeConnection(t)
	d := NewEventDispatcher()

	d.Dispatch(conn, []byte(`not json`))

	event, data := readFrame(t, frames)
	if event != protocol.EventError {
		t.Fatalf("expected error frame, got %q", event)
	}
	var payload protocol.ErrorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("bad error payload: %v", err)
	}
	if payload.Code != "invalid_event" {
		t.Errorf("expected invalid_event code, got %q", payload.Code)
	}
}

func TestDispatcherRejectsUnregisteredEvent(t *testing.T) {
	conn, frames := newPipeConnection(t)
	d := NewEventDispatcher()

	// Well-formed and known to the protocol, but nothing registered for it.
	d.Dispatch(conn, []byte(`{"event":"chat-joined","data":{"userId":"u1","members":["u1"]}}`))

	event, data := readFrame(t, frames)
	if event != protocol.EventError {
		t.Fatalf("expected error frame, got %q", event)
	}
	var payload protocol.ErrorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("bad error payload: %v", err)
	}
	if payload.Code != "unsupported_event" {
		t.Errorf("expected unsupported_event code, got %q", payload.Code)
	}
}
