package call

// State is the handshake state of one per-remote-peer session.
//
// The happy paths are:
//
//	caller: Idle -> Offering -> AwaitingAnswer -> Connected -> Ended
//	callee: Idle -> Answering -> Connected -> Ended
//
// Offering and Answering cover the asynchronous work (capture, transport
// construction, description generation) before the corresponding message has
// been sent. Ended is terminal; a later call with the same peer starts a
// fresh session.
type State int

const (
	StateIdle State = iota
	StateOffering
	StateAwaitingAnswer
	StateAnswering
	StateConnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// active reports whether the session holds or is about to hold transport
// and media resources.
func (s State) active() bool {
	switch s {
	case StateOffering, StateAwaitingAnswer, StateAnswering, StateConnected:
		return true
	default:
		return false
	}
}
