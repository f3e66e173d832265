// Package session - client.go
//
// One Client per WebSocket connection. Each client runs two goroutines:
// readPump feeds inbound frames to the hub's router, writePump drains the
// bounded send queue and serializes frames onto the socket. The send queue is
// the backpressure boundary: if it overflows, the connection is failed and
// torn down rather than letting one slow client block a room.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/logging"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/metrics"
)

// sendQueueSize bounds the per-connection outbound queue.
const sendQueueSize = 256

// writeWait is the deadline applied to each outbound frame write.
const writeWait = 10 * time.Second

// wsConnection is the transport a Client needs. Satisfied by *wswire.Conn in
// production and by mock connections in tests.
type wsConnection interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	WriteClose() error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Client represents one connected user.
type Client struct {
	conn wsConnection
	hub  *Hub
	send chan []byte

	id string // stable connection id, assigned at upgrade

	mu       sync.RWMutex
	username string
	roomID   RoomIDType

	failed atomic.Bool // set when the send queue overflows

	sendMu     sync.Mutex // serializes enqueue against closeSend
	sendClosed bool
}

// ID returns the stable connection id.
func (c *Client) ID() string { return c.id }

// Username returns the authenticated username, empty until setUsername.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Client) setUsername(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = name
}

// RoomID returns the id of the room the client is in, empty when not in one.
func (c *Client) RoomID() RoomIDType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Client) setRoom(id RoomIDType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = id
}

// enqueue places data on the outbound queue without blocking. On overflow the
// connection is marked failed and its socket closed; readPump then runs the
// normal disconnect path so room members see a userLeft.
func (c *Client) enqueue(data []byte) {
	if c.failed.Load() {
		return
	}

	c.sendMu.Lock()
	if c.sendClosed {
		c.sendMu.Unlock()
		return
	}
	overflow := false
	select {
	case c.send <- data:
	default:
		overflow = true
	}
	c.sendMu.Unlock()

	if overflow && c.failed.CompareAndSwap(false, true) {
		metrics.DroppedMessages.Inc()
		logging.Warn(context.Background(), "Send queue overflow, closing connection",
			zap.String("clientId", c.id),
			zap.String("username", c.Username()))
		c.conn.Close()
	}
}

// readPump continuously reads frames and hands them to the router. Runs in
// its own goroutine; exits on any read error and triggers cleanup.
func (c *Client) readPump() {
	defer func() {
		c.hub.handleClientDisconnect(c)
		c.conn.Close()
		metrics.DecConnection()
	}()

	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.hub.router(context.Background(), c, data)
	}
}

// writePump serializes outbound frames. The single writer guarantees
// per-connection ordering; it exits when the send channel is closed.
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(message); err != nil {
			logging.Error(context.Background(), "error writing message",
				zap.String("clientId", c.id), zap.Error(err))
			return
		}
	}
	c.conn.WriteClose()
}

// closeSend closes the send channel exactly once. Fan-out paths snapshot the
// client set outside the hub lock, so a late enqueue can race this close; the
// shared sendMu makes that race a silent drop instead of a send on a closed
// channel.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}
