package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"slidecast/internal/models"
)

// CloseUnauthorized is the application close code sent when a presenter
// registration fails the shared-key check. 4000-4999 is the range reserved
// for application use.
const CloseUnauthorized = 4401

const closeWriteTimeout = time.Second

// Client wraps one hub connection. The role is owned by the hub and only
// touched while the hub mutex is held; the trusted flag is captured once at
// accept time and never re-evaluated.
type Client struct {
	conn    *websocket.Conn
	trusted bool
	role    models.Role

	mu     sync.Mutex
	hook   func([]byte)
	closed bool
}

func NewClient(conn *websocket.Conn, trusted bool) *Client {
	return &Client{conn: conn, trusted: trusted}
}

func (c *Client) Trusted() bool { return c.trusted }

// SetSendHook replaces the WebSocket sender with a payload capture (used in
// tests).
func (c *Client) SetSendHook(fn func([]byte)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send marshals v and writes it out. Errors are dropped: broadcast is
// fire-and-forget and a dead peer must never stall the hub.
func (c *Client) Send(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.SendRaw(payload)
}

// SendRaw writes a pre-encoded frame, skipping connections that have
// already closed.
func (c *Client) SendRaw(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.hook != nil {
		c.hook(payload)
		return
	}
	if c.conn == nil {
		return
	}
	_ = c.conn.WriteMessage(websocket.TextMessage, payload)
}

// CloseUnauthorized terminates the connection with the unauthorized close
// code. No frame is delivered to the client afterwards.
func (c *Client) CloseUnauthorized() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(CloseUnauthorized, "unauthorized")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	_ = c.conn.Close()
}

// MarkClosed flags the client so pending broadcasts skip it. Called when the
// read loop observes a close or error.
func (c *Client) MarkClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
