package call

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// RemoteMedia is an incoming media track surfaced to the application for
// rendering. Track is nil when the transport implementation has no real RTP
// flow (tests).
type RemoteMedia struct {
	StreamID string
	Kind     string
	Track    *webrtc.TrackRemote
}

// Transport is the peer-connection capability a session drives. One
// transport per session, constructed when negotiation starts and closed when
// the session ends.
//
// Implementations must tolerate Close at any point; callbacks fired after
// Close are ignored by the session's staleness checks.
type Transport interface {
	// CreateOffer generates a local offer and installs it as the local
	// description.
	CreateOffer() (webrtc.SessionDescription, error)

	// CreateAnswer installs the remote offer, generates an answer and
	// installs it as the local description.
	CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)

	// SetRemoteDescription installs the remote answer.
	SetRemoteDescription(desc webrtc.SessionDescription) error

	// AddICECandidate applies one remote connectivity candidate. Valid only
	// once a remote description is installed.
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	// AddTrack attaches one outgoing track.
	AddTrack(track webrtc.TrackLocal) error

	// ReplaceTrack swaps the outgoing track of the same kind, keeping the
	// negotiated sender (used for camera/screen switching).
	ReplaceTrack(track webrtc.TrackLocal) error

	// OnICECandidate registers the callback for locally gathered candidates.
	OnICECandidate(fn func(webrtc.ICECandidateInit))

	// OnTrack registers the callback for incoming remote media.
	OnTrack(fn func(RemoteMedia))

	// OnFailure registers the callback for a failed or closed connection.
	OnFailure(fn func())

	Close() error
}

// TransportFactory builds one Transport per negotiation attempt.
type TransportFactory interface {
	NewTransport() (Transport, error)
}

// TransportFactoryFunc adapts a function to the TransportFactory interface.
type TransportFactoryFunc func() (Transport, error)

func (f TransportFactoryFunc) NewTransport() (Transport, error) { return f() }

// Wire conversions. Descriptions and candidates travel as opaque JSON blobs;
// only the client edge gives them a concrete type.

func marshalDescription(desc webrtc.SessionDescription) (json.RawMessage, error) {
	return json.Marshal(desc)
}

func unmarshalDescription(raw json.RawMessage) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return desc, fmt.Errorf("decode session description: %w", err)
	}
	return desc, nil
}

func marshalCandidate(c webrtc.ICECandidateInit) (json.RawMessage, error) {
	return json.Marshal(c)
}

func unmarshalCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("decode ICE candidate: %w", err)
	}
	return c, nil
}
