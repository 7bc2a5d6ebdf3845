// Package signaling implements the relay side of the meet-p2p protocol: a
// room registry that tracks which connection ids belong to which room, and a
// negotiation router that forwards offers, answers, candidates and hang-ups
// to exactly the addressed peer.
package signaling

import (
	"context"
	"log/slog"

	"github.com/BhargavShekhar/meet-p2p/internal/protocol"
)

// inboundMessage pairs a decoded envelope with the client that sent it.
type inboundMessage struct {
	client *Client
	env    *protocol.Envelope
}

// Stats is a point-in-time snapshot of hub state.
type Stats struct {
	Clients int                 `json:"clients"`
	Rooms   map[string][]string `json:"rooms"`
}

// Hub owns all room membership state. A single goroutine (Run) processes
// registrations, disconnects and inbound messages from channels, so a join
// is always fully committed before its notification fan-out is computed and
// no two joins into the same room can interleave.
type Hub struct {
	log *slog.Logger

	// clients maps connection ids to active clients.
	clients map[string]*Client

	// rooms maps room codes to Room instances.
	rooms map[string]*Room

	// Register is the channel for newly connected clients.
	Register chan *Client

	// Unregister is the channel for disconnecting clients.
	Unregister chan *Client

	// Inbound is the channel of messages read from client links.
	Inbound chan inboundMessage

	statsReq chan chan Stats
}

// NewHub creates a hub. Call Run to start processing.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[string]*Client),
		rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan inboundMessage),
		statsReq:   make(chan chan Stats),
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.clients[client.ID] = client
			h.log.Debug("client registered", "conn", client.ID)

		case client := <-h.Unregister:
			// Disconnect is idempotent: a client already removed (e.g. as a
			// slow consumer) is skipped entirely.
			if _, ok := h.clients[client.ID]; !ok {
				continue
			}
			h.removeClient(client)
			h.log.Debug("client unregistered", "conn", client.ID)

		case msg := <-h.Inbound:
			h.handleMessage(msg.client, msg.env)

		case reply := <-h.statsReq:
			reply <- h.snapshot()
		}
	}
}

// Stats returns a snapshot of hub state. It must only be called while Run is
// active.
func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	h.statsReq <- reply
	return <-reply
}

func (h *Hub) handleMessage(c *Client, env *protocol.Envelope) {
	payload, err := protocol.ParseClientEvent(env)
	if err != nil {
		// Validation failures bounce back to the sender only; they never
		// become protocol faults for anyone else.
		h.log.Debug("rejected message", "conn", c.ID, "event", env.Event, "err", err)
		h.reply(c, protocol.EventError, &protocol.ErrorPayload{Error: err.Error()})
		return
	}

	switch p := payload.(type) {
	case *protocol.JoinRoom:
		h.handleJoin(c, p)

	case *protocol.CallOffer:
		h.route(c, p.To, protocol.EventIncomingCall, &protocol.IncomingCall{
			From:  c.ID,
			Offer: p.Offer,
		})

	case *protocol.CallAccepted:
		h.route(c, p.To, protocol.EventCallAccepted, &protocol.CallAccepted{
			From:   c.ID,
			Answer: p.Answer,
		})

	case *protocol.ICECandidate:
		h.route(c, p.To, protocol.EventICECandidate, &protocol.ICECandidate{
			From:      c.ID,
			Candidate: p.Candidate,
		})

	case *protocol.CallEnded:
		h.route(c, p.To, protocol.EventCallEnded, &protocol.CallEnded{From: c.ID})
	}
}

// handleJoin admits a client into a room: membership is committed first,
// existing members are then notified, and finally the joiner gets its
// acknowledgement. A client joining a new room leaves its previous one.
func (h *Hub) handleJoin(c *Client, p *protocol.JoinRoom) {
	if c.RoomCode == p.RoomCode && c.RoomCode != "" {
		// Re-join of the same room: just re-ack.
		h.reply(c, protocol.EventRoomJoin, &protocol.JoinRoom{Label: p.Label, RoomCode: p.RoomCode})
		return
	}
	if c.RoomCode != "" {
		h.leaveRoom(c)
	}

	room, ok := h.rooms[p.RoomCode]
	if !ok {
		room = newRoom(p.RoomCode)
		h.rooms[p.RoomCode] = room
	}
	room.Members[c.ID] = c
	c.RoomCode = p.RoomCode
	c.Label = p.Label

	for id, member := range room.Members {
		if id == c.ID {
			continue
		}
		h.reply(member, protocol.EventUserJoined, &protocol.UserJoined{
			Label: p.Label,
			ID:    c.ID,
		})
	}

	h.reply(c, protocol.EventRoomJoin, &protocol.JoinRoom{Label: p.Label, RoomCode: p.RoomCode})
	h.log.Info("client joined room", "conn", c.ID, "room", p.RoomCode, "members", len(room.Members))
}

// route rewrites a client-addressed message into a sender-stamped envelope
// and delivers it to the target, if still connected. A missing target is a
// silent drop: signaling is best-effort and the sender cannot assume the
// peer is still present.
func (h *Hub) route(sender *Client, to, event string, data any) {
	target, ok := h.clients[to]
	if !ok {
		h.log.Debug("dropping message for unknown target", "event", event, "from", sender.ID, "to", to)
		return
	}
	h.reply(target, event, data)
}

// reply enqueues an envelope on one client's send queue. A client whose
// queue is full is dropped rather than allowed to stall the hub.
func (h *Hub) reply(c *Client, event string, data any) {
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		h.log.Error("encode envelope", "event", event, "err", err)
		return
	}
	select {
	case c.Send <- env:
	default:
		h.log.Warn("send queue full, dropping client", "conn", c.ID)
		h.removeClient(c)
	}
}

// removeClient purges a client's membership and closes its send queue,
// which stops its WritePump.
func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	h.leaveRoom(c)
	delete(h.clients, c.ID)
	close(c.Send)
}

// leaveRoom removes the client from whatever room it is in and reclaims the
// room if it became empty.
func (h *Hub) leaveRoom(c *Client) {
	if c.RoomCode == "" {
		return
	}
	room, ok := h.rooms[c.RoomCode]
	if ok {
		delete(room.Members, c.ID)
		if len(room.Members) == 0 {
			delete(h.rooms, room.Code)
			h.log.Debug("room reclaimed", "room", room.Code)
		}
	}
	c.RoomCode = ""
}

func (h *Hub) snapshot() Stats {
	s := Stats{
		Clients: len(h.clients),
		Rooms:   make(map[string][]string, len(h.rooms)),
	}
	for code, room := range h.rooms {
		ids := make([]string, 0, len(room.Members))
		for id := range room.Members {
			ids = append(ids, id)
		}
		s.Rooms[code] = ids
	}
	return s
}
