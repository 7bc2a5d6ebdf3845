package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BhargavShekhar/meet-p2p/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP blobs

	// Outbound queue depth per client.
	sendQueueSize = 256
)

// Client is a wrapper for a single websocket connection (one participant's
// signaling link).
type Client struct {
	// Hub is the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection. Nil in unit tests; only the pumps
	// touch it.
	Conn *websocket.Conn

	// ID is the server-assigned connection identifier. Unique per link,
	// never reused.
	ID string

	// RoomCode is the room the client is a member of, or "". Owned by the
	// hub goroutine.
	RoomCode string

	// Label is the display label supplied at join time, forwarded verbatim.
	Label string

	// Send is the buffered channel of outbound envelopes. The hub writes to
	// it; WritePump drains it onto the wire.
	Send chan *protocol.Envelope
}

// NewClient wraps an upgraded websocket connection for the hub.
func NewClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		Hub:  hub,
		Conn: conn,
		ID:   id,
		Send: make(chan *protocol.Envelope, sendQueueSize),
	}
}

// ReadPump pumps envelopes from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine, which keeps
// all reads on one goroutine as gorilla requires.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env protocol.Envelope
		if err := c.Conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("read error", "conn", c.ID, "err", err)
			}
			break
		}
		c.Hub.Inbound <- inboundMessage{client: c, env: &env}
	}
}

// WritePump pumps envelopes from the hub to the websocket connection and
// keeps the link alive with periodic pings. One goroutine per connection,
// the only writer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(env); err != nil {
				slog.Debug("write error", "conn", c.ID, "err", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
