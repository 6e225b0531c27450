package main

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Outbound buffer per connection. A connection whose buffer fills up
	// is treated as a failed consumer and disconnected.
	sendBufferSize = 256
)

var (
	errClientClosed   = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// wsClient is one live websocket connection for a user. Its outbound side
// is a buffered channel drained by a dedicated write pump, so a slow peer
// never blocks the goroutine that is fanning a message out.
//
// Lifecycle: created after a successful handshake, closed exactly once via
// Close regardless of how many close signals race (read error, write
// error, hub eviction, server shutdown).
type wsClient struct {
	id     string
	userID string
	conn   *websocket.Conn

	send chan []byte
	done chan struct{}

	// onClose, when set, runs exactly once as part of Close. The server
	// uses it to unregister the connection and announce the user offline
	// if this was their last one.
	onClose func()

	closeOnce sync.Once
}

func newWSClient(id, userID string, conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// Send enqueues payload for the write pump. It never blocks: a closed
// connection or a full buffer is reported as an error so the hub can
// evict this connection without stalling delivery to anyone else.
func (c *wsClient) Send(payload []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errSendBufferFull
	}
}

// Close tears the connection down. Safe to call from any goroutine, any
// number of times; only the first call has an effect. Closing unblocks
// both pumps: the write pump via done, the read pump via the closed
// underlying connection.
func (c *wsClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}

// writePump drains the send channel to the peer and keeps the connection
// alive with periodic pings. It owns all writes to the underlying
// connection. Runs on its own goroutine; exits on write failure or Close.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
