// Package protocol defines the websocket message envelope and the closed set
// of signaling events exchanged between clients and the relay. Session
// descriptions and ICE candidates are opaque blobs here; only the two peers
// ever interpret them.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event names. Kept in the socket.io-style "scope:action" form so a browser
// client can speak to the same relay.
const (
	// EventSessionCreated is sent by the server once, immediately after the
	// websocket is established, and carries the server-assigned connection id.
	EventSessionCreated = "session:created"

	// EventRoomJoin is sent by a client to enter a room, and echoed back by
	// the server as the join acknowledgement.
	EventRoomJoin = "room:join"

	// EventUserJoined notifies existing room members about a new arrival.
	EventUserJoined = "user:joined"

	// EventUserCall carries an offer to a named peer (client to server).
	EventUserCall = "user:call"

	// EventIncomingCall delivers a relayed offer (server to client).
	EventIncomingCall = "incoming:call"

	// EventCallAccepted carries an answer, in both directions.
	EventCallAccepted = "call:accepted"

	// EventICECandidate carries a connectivity candidate, in both directions.
	EventICECandidate = "peer:ice:candidate"

	// EventCallEnded is a payload-free hang-up notification, in both directions.
	EventCallEnded = "call:ended"

	// EventError reports a boundary validation failure back to the sender.
	EventError = "error"
)

var (
	ErrUnknownEvent  = errors.New("protocol: unknown event")
	ErrBadPayload    = errors.New("protocol: malformed payload")
	ErrEmptyRoomCode = errors.New("protocol: empty room code")
	ErrMissingTarget = errors.New("protocol: missing target id")
)

// Envelope is the wire frame for every signaling message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SessionCreated tells a client its own connection identifier.
type SessionCreated struct {
	ID string `json:"id"`
}

// JoinRoom is the room:join request and its acknowledgement. The label is
// opaque display data, forwarded verbatim and never interpreted by the relay.
type JoinRoom struct {
	Label    string `json:"label"`
	RoomCode string `json:"roomCode"`
}

// UserJoined announces a new room member to the members already present.
type UserJoined struct {
	Label string `json:"label"`
	ID    string `json:"id"`
}

// CallOffer asks the relay to deliver an offer to one peer.
type CallOffer struct {
	To    string          `json:"to"`
	Offer json.RawMessage `json:"offer"`
}

// IncomingCall is a relayed offer, stamped with the sender's id.
type IncomingCall struct {
	From  string          `json:"from"`
	Offer json.RawMessage `json:"offer"`
}

// CallAccepted carries an answer. Clients set To; the relay rewrites the
// envelope so the recipient sees From.
type CallAccepted struct {
	To     string          `json:"to,omitempty"`
	From   string          `json:"from,omitempty"`
	Answer json.RawMessage `json:"answer"`
}

// ICECandidate carries one connectivity candidate.
type ICECandidate struct {
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	Candidate json.RawMessage `json:"candidate"`
}

// CallEnded is a hang-up notification with no payload beyond addressing.
type CallEnded struct {
	To   string `json:"to,omitempty"`
	From string `json:"from,omitempty"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewEnvelope marshals a payload into an envelope for the given event.
func NewEnvelope(event string, data any) (*Envelope, error) {
	if data == nil {
		return &Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return &Envelope{Event: event, Data: raw}, nil
}

// ParseClientEvent validates and decodes an envelope received from a client.
// It returns exactly one of the typed payload structs above. Anything outside
// the closed event set, or failing the boundary checks, is rejected before it
// can reach the hub's core logic.
func ParseClientEvent(env *Envelope) (any, error) {
	switch env.Event {
	case EventRoomJoin:
		var p JoinRoom
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.RoomCode) == "" {
			return nil, ErrEmptyRoomCode
		}
		return &p, nil

	case EventUserCall:
		var p CallOffer
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		if p.To == "" {
			return nil, ErrMissingTarget
		}
		return &p, nil

	case EventCallAccepted:
		var p CallAccepted
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		if p.To == "" {
			return nil, ErrMissingTarget
		}
		return &p, nil

	case EventICECandidate:
		var p ICECandidate
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		if p.To == "" {
			return nil, ErrMissingTarget
		}
		return &p, nil

	case EventCallEnded:
		var p CallEnded
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		if p.To == "" {
			return nil, ErrMissingTarget
		}
		return &p, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// ParseServerEvent validates and decodes an envelope received from the
// relay. Routed events must carry the sender stamp; anything outside the
// closed event set is rejected at the boundary.
func ParseServerEvent(env *Envelope) (any, error) {
	switch env.Event {
	case EventSessionCreated:
		var p SessionCreated
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: session:created without id", ErrBadPayload)
		}
		return &p, nil

	case EventRoomJoin:
		var p JoinRoom
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		return &p, nil

	case EventUserJoined:
		var p UserJoined
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: user:joined without id", ErrBadPayload)
		}
		return &p, nil

	case EventIncomingCall:
		var p IncomingCall
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		if p.From == "" {
			return nil, fmt.Errorf("%w: incoming:call without sender", ErrBadPayload)
		}
		return &p, nil

	case EventCallAccepted:
		var p CallAccepted
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		if p.From == "" {
			return nil, fmt.Errorf("%w: call:accepted without sender", ErrBadPayload)
		}
		return &p, nil

	case EventICECandidate:
		var p ICECandidate
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		if p.From == "" {
			return nil, fmt.Errorf("%w: candidate without sender", ErrBadPayload)
		}
		return &p, nil

	case EventCallEnded:
		var p CallEnded
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		if p.From == "" {
			return nil, fmt.Errorf("%w: call:ended without sender", ErrBadPayload)
		}
		return &p, nil

	case EventError:
		var p ErrorPayload
		if err := decode(env, &p); err != nil {
			return nil, err
		}
		return &p, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decode(env *Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrBadPayload, env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Event, err)
	}
	return nil
}
