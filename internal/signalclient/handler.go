package signalclient

import (
	"log/slog"

	"github.com/BhargavShekhar/meet-p2p/internal/protocol"
)

// Handler decodes incoming envelopes at the boundary and routes the typed
// payloads to per-event channels.
type Handler struct {
	incoming <-chan *protocol.Envelope

	SessionCreated chan *protocol.SessionCreated
	RoomJoined     chan *protocol.JoinRoom
	UserJoined     chan *protocol.UserJoined
	IncomingCall   chan *protocol.IncomingCall
	CallAccepted   chan *protocol.CallAccepted
	ICECandidate   chan *protocol.ICECandidate
	CallEnded      chan *protocol.CallEnded
	ServerError    chan string

	// Closed closes when the link is lost.
	Closed chan struct{}
}

// NewHandler creates a handler reading from the given envelope stream,
// usually Client.Incoming().
func NewHandler(incoming <-chan *protocol.Envelope) *Handler {
	return &Handler{
		incoming:       incoming,
		SessionCreated: make(chan *protocol.SessionCreated, 1),
		RoomJoined:     make(chan *protocol.JoinRoom, 1),
		UserJoined:     make(chan *protocol.UserJoined, 8),
		IncomingCall:   make(chan *protocol.IncomingCall, 8),
		CallAccepted:   make(chan *protocol.CallAccepted, 8),
		ICECandidate:   make(chan *protocol.ICECandidate, 32),
		CallEnded:      make(chan *protocol.CallEnded, 8),
		ServerError:    make(chan string, 1),
		Closed:         make(chan struct{}),
	}
}

// Start consumes the envelope stream until it closes. Run it on its own
// goroutine.
func (h *Handler) Start() {
	defer close(h.Closed)

	for env := range h.incoming {
		payload, err := protocol.ParseServerEvent(env)
		if err != nil {
			slog.Debug("discarding server message", "event", env.Event, "err", err)
			continue
		}

		switch p := payload.(type) {
		case *protocol.SessionCreated:
			h.SessionCreated <- p
		case *protocol.JoinRoom:
			h.RoomJoined <- p
		case *protocol.UserJoined:
			h.UserJoined <- p
		case *protocol.IncomingCall:
			h.IncomingCall <- p
		case *protocol.CallAccepted:
			h.CallAccepted <- p
		case *protocol.ICECandidate:
			h.ICECandidate <- p
		case *protocol.CallEnded:
			h.CallEnded <- p
		case *protocol.ErrorPayload:
			h.ServerError <- p.Error
		}
	}
}
