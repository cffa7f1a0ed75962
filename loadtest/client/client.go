// Package client provides a reusable WebSocket load test client for the
// Parley chat server. It connects using gobwas/ws (the same library the
// server uses), authenticates with a user-token cookie obtained from the
// REST API, and tracks per-connection performance metrics.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ---------------------------------------------------------------------------
// Protocol event names (local equivalents of internal/protocol constants)
// ---------------------------------------------------------------------------

// Client -> Server events.
const (
	EventNewMessage  = "new-message"
	EventStartTyping = "start-typing"
	EventStopTyping  = "stop-typing"
	EventChatJoined  = "chat-joined"
	EventChatLeft    = "chat-left"
	EventPing        = "ping"
)

// Server -> Client events.
const (
	EventAlert           = "alert"
	EventRefetchChats    = "refetch-chats"
	EventNewMessageAlert = "new-message-alert"
	EventNewRequest      = "new-request"
	EventOnlineUsers     = "online-users"
	EventError           = "error"
	EventPong            = "pong"
)

// cookieName is the auth cookie the server reads on upgrade.
const cookieName = "user-token"

// envelope is the wire frame shape in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency   time.Duration
	MessagesReceived int
	MessagesSent     int
	Errors           int
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client represents a single simulated user connection to the Parley server.
// It manages the WebSocket lifecycle and dispatches incoming events to
// registered handlers.
type Client struct {
	conn      net.Conn
	userID    string
	mu        sync.Mutex
	metrics   Metrics
	handlers  map[string]func(json.RawMessage)
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new load test client connected to the given WebSocket URL,
// authenticating as the user behind the given token. The connection is
// established immediately and a background goroutine begins reading frames.
func New(ctx context.Context, url, userID, token string) (*Client, error) {
	header := http.Header{}
	header.Set("Cookie", (&http.Cookie{Name: cookieName, Value: token}).String())
	dialer := ws.Dialer{Header: ws.HandshakeHeaderHTTP(header)}

	start := time.Now()
	conn, _, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		userID:   userID,
		handlers: make(map[string]func(json.RawMessage)),
		done:     make(chan struct{}),
	}
	c.metrics.ConnectLatency = time.Since(start)

	go c.readLoop()

	return c, nil
}

// Send sends an event frame to the server. It is goroutine-safe.
func (c *Client) Send(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	frame, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.MessagesSent++
	return wsutil.WriteClientMessage(c.conn, ws.OpText, frame)
}

// On registers a handler for a server event. The handler receives the raw
// data object of the frame for flexible decoding. Handlers are invoked from
// the read loop goroutine so they should not block for extended periods.
// Only one handler per event is supported; registering a second handler for
// the same event replaces the first.
func (c *Client) On(event string, handler func(json.RawMessage)) {
	c.handlers[event] = handler
}

// Close closes the connection and stops the read loop. It is safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// UserID returns the identity this client authenticated as.
func (c *Client) UserID() string {
	return c.userID
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	return c.metrics
}

// readLoop continuously reads WebSocket frames from the server and
// dispatches them to registered handlers. It runs until the connection is
// closed or an unrecoverable error occurs.
func (c *Client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				// Connection was intentionally closed; do not count as error.
				return
			default:
			}
			c.metrics.Errors++
			return
		}

		c.metrics.MessagesReceived++

		var frame envelope
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		if handler, ok := c.handlers[frame.Event]; ok {
			handler(frame.Data)
		}
	}
}
