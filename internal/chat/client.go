// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/chillter/realtime/internal/logging"
)

const (
	// writeWait is the deadline for one outbound frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before the read
	// deadline expires; pings go out at pingPeriod to keep it alive.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds a single inbound chat message.
	maxMessageSize = 8 * 1024

	sendBuffer = 64
)

// clientIDCounter hands out unique, monotonically increasing connection ids.
// Ids give broadcasts a stable iteration order and identify connections in
// logs the way the original server's resource ids did.
var clientIDCounter atomic.Uint64

// Client is one live chat connection. Created only after authentication and
// the membership check have both passed; owned by its session goroutines,
// the Registry holds a non-owning reference.
type Client struct {
	id      uint64
	conn    *websocket.Conn
	userID  int64
	eventID int64

	// limiter bounds inbound message throughput per connection.
	limiter *rate.Limiter

	send   chan []byte
	sendMu sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, userID, eventID int64, messageRate rate.Limit, burst int) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		conn:    conn,
		userID:  userID,
		eventID: eventID,
		limiter: rate.NewLimiter(messageRate, burst),
		send:    make(chan []byte, sendBuffer),
	}
}

// ID returns the connection's unique identifier.
func (c *Client) ID() uint64 { return c.id }

// UserID returns the authenticated user id.
func (c *Client) UserID() int64 { return c.userID }

// EventID returns the event whose room this connection subscribed to.
func (c *Client) EventID() int64 { return c.eventID }

// enqueue queues a frame for delivery. Returns false if the connection's
// send channel is closed or full; the caller decides whether that drops the
// connection.
func (c *Client) enqueue(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel, which makes writePump send a websocket
// close frame and exit. Safe to call more than once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump pumps queued frames to the websocket connection and keeps the
// connection alive with periodic pings. One writePump per connection; it
// owns all writes after the join handshake.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Uint64("connection", c.id).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// Registry dropped us or the server is shutting down.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Debug().Err(err).Uint64("connection", c.id).Msg("chat frame write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
