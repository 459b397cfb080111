package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/auditflow/automation-engine/common/logger"
)

const (
	// Time allowed to flush one frame to the peer
	writeWait = 10 * time.Second

	// Peer must pong within this window or the socket is dead
	pongWait = 60 * time.Second

	// Ping cadence, comfortably inside the pong window
	pingPeriod = 50 * time.Second

	// Followers never send data, only control frames
	maxMessageSize = 512
)

// client is one websocket follower of a single job's lifecycle stream.
type client struct {
	hub   *hub
	conn  *websocket.Conn
	jobID uuid.UUID
	send  chan []byte
	log   *logger.Logger
}

func newClient(h *hub, conn *websocket.Conn, jobID uuid.UUID, log *logger.Logger) *client {
	return &client{
		hub:   h,
		conn:  conn,
		jobID: jobID,
		send:  make(chan []byte, 64),
		log:   log.Scoped("job_id", jobID.String()),
	}
}

// readPump discards inbound frames; the stream is server-push only. It
// exists to service pongs and to notice the peer going away.
func (c *client) readPump() {
	defer func() {
		c.detach()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("follower socket error", "error", err)
			}
			return
		}
	}
}

// writePump forwards queued events as individual text frames so the
// consumer can parse each JSON document on its own, and keeps the
// connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub dropped us after the final event; say goodbye.
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// detach hands the client back to the hub without blocking on a hub
// that has already stopped.
func (c *client) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}
