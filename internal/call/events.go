package call

// Event is a notification surfaced to the surrounding application.
type Event interface{ event() }

// RoomJoinedEvent acknowledges the local join request.
type RoomJoinedEvent struct {
	Label    string
	RoomCode string
}

// PeerJoinedEvent reports a new arrival in the room.
type PeerJoinedEvent struct {
	PeerID string
	Label  string
}

// SessionStateEvent reports a session state transition.
type SessionStateEvent struct {
	PeerID string
	State  State
	Reason string
}

// RemoteTrackEvent delivers an incoming media track for rendering.
type RemoteTrackEvent struct {
	PeerID string
	Media  RemoteMedia
}

// ScreenShareEvent reports a media-source switch.
type ScreenShareEvent struct {
	Active bool
}

// LinkLostEvent reports loss of the signaling link. All sessions have been
// torn down by the time it is observed.
type LinkLostEvent struct{}

// ErrorEvent surfaces a non-fatal error for user display.
type ErrorEvent struct {
	Err error
}

func (RoomJoinedEvent) event()   {}
func (PeerJoinedEvent) event()   {}
func (SessionStateEvent) event() {}
func (RemoteTrackEvent) event()  {}
func (ScreenShareEvent) event()  {}
func (LinkLostEvent) event()     {}
func (ErrorEvent) event()        {}
