package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory Conn that records every frame it receives.
// Fanout writes from goroutines, so tests wait on the frames channel.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	ch     chan []byte
	fail   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{ch: make(chan []byte, 64)}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection reset")
	}
	c.frames = append(c.frames, data)
	c.ch <- data
	return nil
}

// waitFrame blocks until the connection receives a frame or the test times
// out, and returns the decoded envelope.
func waitFrame(t *testing.T, c *fakeConn) (string, json.RawMessage) {
	t.Helper()
	select {
	case data := <-c.ch:
		var env struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("frame is not valid JSON: %v", err)
		}
		return env.Event, env.Data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return "", nil
	}
}

// assertNoFrame verifies the connection receives nothing within a short
// window.
func assertNoFrame(t *testing.T, c *fakeConn) {
	t.Helper()
	select {
	case data := <-c.ch:
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestFanout_DeliverSkipsOfflineMembers(t *testing.T) {
	reg := NewRegistry()
	online := newFakeConn()
	reg.Register("u1", online)

	fan := NewFanout(reg)
	fan.Deliver([]string{"u1", "u2"}, "alert", map[string]string{"text": "hello"})

	event, _ := waitFrame(t, online)
	if event != "alert" {
		t.Fatalf("expected alert event, got %q", event)
	}
}

func TestFanout_DeliverDeduplicatesDestinations(t *testing.T) {
	reg := NewRegistry()
	conn := newFakeConn()
	reg.Register("u1", conn)

	fan := NewFanout(reg)
	fan.Deliver([]string{"u1", "u1", "u1"}, "refetch-chats", nil)

	waitFrame(t, conn)
	assertNoFrame(t, conn)
	if n := conn.frameCount(); n != 1 {
		t.Fatalf("expected exactly 1 frame, got %d", n)
	}
}

func TestFanout_DeliverToOnlyAbsentMembersIsSilent(t *testing.T) {
	reg := NewRegistry()
	bystander := newFakeConn()
	reg.Register("u9", bystander)

	fan := NewFanout(reg)
	fan.Deliver([]string{"u3", "u4"}, "alert", nil) // nobody in the list is online

	assertNoFrame(t, bystander)
}

func TestFanout_FailedSendDoesNotAffectOthers(t *testing.T) {
	reg := NewRegistry()
	broken := newFakeConn()
	broken.fail = true
	healthy := newFakeConn()
	reg.Register("u1", broken)
	reg.Register("u2", healthy)

	fan := NewFanout(reg)
	fan.Deliver([]string{"u1", "u2"}, "new-request", nil)

	event, _ := waitFrame(t, healthy)
	if event != "new-request" {
		t.Fatalf("expected new-request event, got %q", event)
	}
}

func TestFanout_BroadcastReachesAllConnections(t *testing.T) {
	reg := NewRegistry()
	c1 := newFakeConn()
	c2 := newFakeConn()
	reg.Register("u1", c1)
	reg.Register("u2", c2)

	fan := NewFanout(reg)
	fan.Broadcast("online-users", []string{"u1"})

	for _, c := range []*fakeConn{c1, c2} {
		event, _ := waitFrame(t, c)
		if event != "online-users" {
			t.Fatalf("expected online-users event, got %q", event)
		}
	}
}
