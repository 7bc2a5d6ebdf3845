package call

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// Session is the negotiation state for one remote peer. All fields are owned
// by the manager's event loop.
type Session struct {
	remoteID string
	label    string
	state    State

	// epoch invalidates in-flight asynchronous work: it is bumped whenever
	// the session's transport is torn down or replaced, and every async
	// completion re-checks it before applying effects.
	epoch uint64

	transport Transport

	// pendingCandidates holds remote candidates received before a remote
	// description was installed, in receipt order.
	pendingCandidates []webrtc.ICECandidateInit
	remoteDescSet     bool

	answerTimer *time.Timer
}

func newSession(remoteID string) *Session {
	return &Session{remoteID: remoteID, state: StateIdle}
}

// invalidate bumps the epoch and cancels the answer timer, so any result
// still in flight is discarded on arrival.
func (s *Session) invalidate() {
	s.epoch++
	if s.answerTimer != nil {
		s.answerTimer.Stop()
		s.answerTimer = nil
	}
}

// maxQueuedCandidates bounds how many early candidates one session may hold
// before its remote description arrives. A real trickle fits comfortably; a
// peer flooding candidates without ever negotiating does not.
const maxQueuedCandidates = 32

// queueCandidate stores a candidate that cannot be applied yet. Reports
// whether the candidate was kept.
func (s *Session) queueCandidate(c webrtc.ICECandidateInit) bool {
	if len(s.pendingCandidates) >= maxQueuedCandidates {
		return false
	}
	s.pendingCandidates = append(s.pendingCandidates, c)
	return true
}

// takeCandidates returns the queued candidates in receipt order and clears
// the queue.
func (s *Session) takeCandidates() []webrtc.ICECandidateInit {
	pending := s.pendingCandidates
	s.pendingCandidates = nil
	return pending
}
