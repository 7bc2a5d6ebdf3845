// Package call implements the client-side connection lifecycle: per-remote-
// peer handshake state machines, candidate queuing, glare resolution and
// media/transport resource ownership.
package call

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BhargavShekhar/meet-p2p/internal/media"
	"github.com/BhargavShekhar/meet-p2p/internal/protocol"
	"github.com/BhargavShekhar/meet-p2p/internal/signalclient"
)

// DefaultNegotiationTimeout bounds how long a sent offer may wait for its
// answer before the attempt is abandoned.
const DefaultNegotiationTimeout = 30 * time.Second

// Sender is the outbound half of the signaling link.
type Sender interface {
	Send(env *protocol.Envelope)
}

// Manager drives all call sessions for one local participant. A single event
// loop (Run) owns every session's state; blocking work (device capture,
// description generation) runs on short-lived goroutines whose results are
// posted back to the loop and checked for staleness before taking effect.
// That serializes all transport operations per remote peer without locks.
type Manager struct {
	log        *slog.Logger
	sender     Sender
	handler    *signalclient.Handler
	transports TransportFactory
	capture    media.Capturer
	timeout    time.Duration

	localID  string
	sessions map[string]*Session

	// localStream is the single local capture stream, shared by every
	// active session and released when the last one ends.
	localStream    *media.Stream
	screenActive   bool
	capturing      bool
	captureWaiters []captureWaiter

	tasks  chan func()
	events chan Event
	done   chan struct{}
}

type captureWaiter struct {
	ok   func(*media.Stream)
	fail func(error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithNegotiationTimeout overrides the answer timeout.
func WithNegotiationTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// NewManager creates a lifecycle manager. Call Run to start it.
func NewManager(log *slog.Logger, sender Sender, handler *signalclient.Handler, transports TransportFactory, capture media.Capturer, opts ...Option) *Manager {
	m := &Manager{
		log:        log,
		sender:     sender,
		handler:    handler,
		transports: transports,
		capture:    capture,
		timeout:    DefaultNegotiationTimeout,
		sessions:   make(map[string]*Session),
		tasks:      make(chan func(), 64),
		events:     make(chan Event, 64),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events is the stream of notifications for the surrounding application.
func (m *Manager) Events() <-chan Event { return m.events }

// Done closes when the manager has stopped.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Join asks the relay to admit this participant into a room.
func (m *Manager) Join(label, roomCode string) {
	m.send(protocol.EventRoomJoin, &protocol.JoinRoom{Label: label, RoomCode: roomCode})
}

// EndCall hangs up on one peer.
func (m *Manager) EndCall(peerID string) {
	m.post(func() {
		s, ok := m.sessions[peerID]
		if !ok || !s.state.active() {
			m.emit(ErrorEvent{Err: WrapError("end call", ErrNoActiveCall, peerID)})
			return
		}
		m.send(protocol.EventCallEnded, &protocol.CallEnded{To: s.remoteID})
		m.endSession(s, "call ended locally")
	})
}

// HangUp ends every active call. It returns once the hang-up notifications
// have been handed to the link, so the caller can close the link without
// losing them.
func (m *Manager) HangUp() {
	done := make(chan struct{})
	m.post(func() {
		defer close(done)
		for _, s := range m.sessions {
			if !s.state.active() {
				continue
			}
			m.send(protocol.EventCallEnded, &protocol.CallEnded{To: s.remoteID})
			m.endSession(s, "call ended locally")
		}
	})
	select {
	case <-done:
	case <-m.done:
	}
}

// ShareScreen switches the outgoing video source to a screen capture.
func (m *Manager) ShareScreen() {
	m.post(func() {
		if m.localStream == nil {
			m.emit(ErrorEvent{Err: WrapError("share screen", ErrNoActiveCall, "no active capture")})
			return
		}
		if m.screenActive {
			return
		}
		m.switchSource(m.capture.ScreenCapture, true)
	})
}

// StopScreenShare switches the outgoing video source back to the camera.
func (m *Manager) StopScreenShare() {
	m.post(func() {
		if !m.screenActive || m.localStream == nil {
			return
		}
		m.switchSource(m.capture.CameraAndMicrophone, false)
	})
}

// Run processes signaling events and posted tasks until the context is
// cancelled or the link is lost.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.teardownAll("shutting down")
			return

		case <-m.handler.Closed:
			m.handleLinkLoss()
			return

		case p := <-m.handler.SessionCreated:
			m.localID = p.ID
			m.log.Debug("assigned connection id", "id", p.ID)

		case p := <-m.handler.RoomJoined:
			m.emit(RoomJoinedEvent{Label: p.Label, RoomCode: p.RoomCode})

		case p := <-m.handler.UserJoined:
			m.handleUserJoined(p)

		case p := <-m.handler.IncomingCall:
			m.handleIncomingCall(p)

		case p := <-m.handler.CallAccepted:
			m.handleCallAccepted(p)

		case p := <-m.handler.ICECandidate:
			m.handleRemoteCandidate(p)

		case p := <-m.handler.CallEnded:
			m.handleRemoteEnded(p)

		case msg := <-m.handler.ServerError:
			m.emit(ErrorEvent{Err: fmt.Errorf("%w: %s", ErrSignaling, msg)})

		case task := <-m.tasks:
			task()
		}
	}
}

// --- inbound events -------------------------------------------------------

// handleUserJoined starts an outgoing call to the new arrival.
func (m *Manager) handleUserJoined(p *protocol.UserJoined) {
	m.emit(PeerJoinedEvent{PeerID: p.ID, Label: p.Label})

	s := m.ensureSession(p.ID)
	s.label = p.Label
	if s.state != StateIdle {
		m.log.Debug("already negotiating with peer", "peer", p.ID, "state", s.state)
		return
	}
	m.startOutgoing(s)
}

func (m *Manager) startOutgoing(s *Session) {
	m.transition(s, StateOffering, "")
	epoch := s.epoch

	m.withLocalStream(
		func(stream *media.Stream) {
			if s.epoch != epoch || s.state != StateOffering {
				return
			}
			if !m.openTransport(s, stream) {
				return
			}
			t := s.transport
			go func() {
				offer, err := t.CreateOffer()
				m.post(func() { m.finishOffer(s, epoch, offer, err) })
			}()
		},
		func(err error) {
			if s.epoch == epoch && s.state == StateOffering {
				m.transition(s, StateIdle, "media capture failed")
			}
		},
	)
}

func (m *Manager) finishOffer(s *Session, epoch uint64, offer webrtc.SessionDescription, err error) {
	if s.epoch != epoch || s.state != StateOffering {
		return
	}
	if err != nil {
		m.failSession(s, NewError("create offer", err))
		return
	}

	raw, err := marshalDescription(offer)
	if err != nil {
		m.failSession(s, NewError("encode offer", err))
		return
	}
	m.send(protocol.EventUserCall, &protocol.CallOffer{To: s.remoteID, Offer: raw})
	m.transition(s, StateAwaitingAnswer, "")

	s.answerTimer = time.AfterFunc(m.timeout, func() {
		m.post(func() {
			if s.epoch != epoch || s.state != StateAwaitingAnswer {
				return
			}
			m.send(protocol.EventCallEnded, &protocol.CallEnded{To: s.remoteID})
			m.endSession(s, "negotiation timed out")
		})
	})
}

// handleIncomingCall answers a relayed offer. An offer that collides with
// our own outstanding offer is glare: the peer with the lexicographically
// smaller connection id stays the offerer, the other abandons its attempt
// and answers.
func (m *Manager) handleIncomingCall(p *protocol.IncomingCall) {
	s := m.ensureSession(p.From)

	switch s.state {
	case StateOffering, StateAwaitingAnswer:
		if m.localID != "" && m.localID < p.From {
			m.log.Debug("glare: keeping local offer", "peer", p.From)
			return
		}
		m.log.Debug("glare: yielding to remote offer", "peer", p.From)
		s.invalidate()
		if s.transport != nil {
			_ = s.transport.Close()
			s.transport = nil
		}
		s.remoteDescSet = false

	case StateAnswering, StateConnected:
		m.log.Debug("ignoring duplicate offer", "peer", p.From, "state", s.state)
		return
	}

	offer, err := unmarshalDescription(p.Offer)
	if err != nil {
		m.emit(ErrorEvent{Err: NewError("decode offer", err)})
		return
	}

	m.transition(s, StateAnswering, "")
	epoch := s.epoch

	m.withLocalStream(
		func(stream *media.Stream) {
			if s.epoch != epoch || s.state != StateAnswering {
				return
			}
			if !m.openTransport(s, stream) {
				return
			}
			t := s.transport
			go func() {
				answer, err := t.CreateAnswer(offer)
				m.post(func() { m.finishAnswer(s, epoch, answer, err) })
			}()
		},
		func(err error) {
			if s.epoch == epoch && s.state == StateAnswering {
				m.transition(s, StateIdle, "media capture failed")
			}
		},
	)
}

func (m *Manager) finishAnswer(s *Session, epoch uint64, answer webrtc.SessionDescription, err error) {
	if s.epoch != epoch || s.state != StateAnswering {
		return
	}
	if err != nil {
		m.failSession(s, NewError("create answer", err))
		return
	}

	raw, err := marshalDescription(answer)
	if err != nil {
		m.failSession(s, NewError("encode answer", err))
		return
	}
	s.remoteDescSet = true
	m.send(protocol.EventCallAccepted, &protocol.CallAccepted{To: s.remoteID, Answer: raw})
	m.transition(s, StateConnected, "")
	m.flushCandidates(s)
}

func (m *Manager) handleCallAccepted(p *protocol.CallAccepted) {
	s, ok := m.sessions[p.From]
	if !ok || s.state != StateAwaitingAnswer {
		m.log.Debug("ignoring unexpected answer", "peer", p.From)
		return
	}

	answer, err := unmarshalDescription(p.Answer)
	if err != nil {
		m.emit(ErrorEvent{Err: NewError("decode answer", err)})
		return
	}

	if s.answerTimer != nil {
		s.answerTimer.Stop()
		s.answerTimer = nil
	}

	epoch := s.epoch
	t := s.transport
	go func() {
		err := t.SetRemoteDescription(answer)
		m.post(func() { m.finishConnect(s, epoch, err) })
	}()
}

func (m *Manager) finishConnect(s *Session, epoch uint64, err error) {
	if s.epoch != epoch || s.state != StateAwaitingAnswer {
		return
	}
	if err != nil {
		m.failSession(s, NewError("set remote description", err))
		return
	}
	s.remoteDescSet = true
	m.transition(s, StateConnected, "")
	m.flushCandidates(s)
}

// handleRemoteCandidate applies a candidate, or queues it when the remote
// description has not arrived yet (message-ordering skew is normal).
func (m *Manager) handleRemoteCandidate(p *protocol.ICECandidate) {
	s := m.ensureSession(p.From)

	candidate, err := unmarshalCandidate(p.Candidate)
	if err != nil {
		m.log.Debug("discarding malformed candidate", "peer", p.From, "err", err)
		return
	}

	if !s.remoteDescSet || s.transport == nil {
		if s.state == StateIdle && len(s.pendingCandidates) == 0 {
			// A candidate can legitimately outrun its offer, but a peer that
			// never negotiates must not pin session state forever.
			m.expireIfStillIdle(s)
		}
		if !s.queueCandidate(candidate) {
			m.log.Debug("candidate queue full, dropping", "peer", p.From)
		}
		return
	}
	if err := s.transport.AddICECandidate(candidate); err != nil {
		m.log.Debug("add candidate", "peer", p.From, "err", err)
	}
}

func (m *Manager) handleRemoteEnded(p *protocol.CallEnded) {
	s, ok := m.sessions[p.From]
	if !ok {
		return
	}
	m.endSession(s, "peer ended the call")
}

func (m *Manager) handleLinkLoss() {
	// The link is gone; no notification can be sent. Release everything.
	m.teardownAll("signaling link lost")
	m.emit(LinkLostEvent{})
}

// --- session plumbing -----------------------------------------------------

// expireIfStillIdle reaps a session that exists only to hold early
// candidates, once the negotiation timeout passes without an offer.
func (m *Manager) expireIfStillIdle(s *Session) {
	time.AfterFunc(m.timeout, func() {
		m.post(func() {
			if cur, ok := m.sessions[s.remoteID]; ok && cur == s && cur.state == StateIdle {
				delete(m.sessions, s.remoteID)
				m.log.Debug("expired idle session", "peer", s.remoteID)
			}
		})
	})
}

func (m *Manager) ensureSession(remoteID string) *Session {
	s, ok := m.sessions[remoteID]
	if !ok {
		s = newSession(remoteID)
		m.sessions[remoteID] = s
	}
	return s
}

// openTransport builds and wires a fresh transport for the session and
// attaches the local stream. Reports success.
func (m *Manager) openTransport(s *Session, stream *media.Stream) bool {
	t, err := m.transports.NewTransport()
	if err != nil {
		m.failSession(s, NewError("create transport", err))
		return false
	}
	s.transport = t
	epoch := s.epoch

	t.OnICECandidate(func(c webrtc.ICECandidateInit) {
		m.post(func() {
			if s.epoch != epoch || !s.state.active() {
				return
			}
			raw, err := marshalCandidate(c)
			if err != nil {
				return
			}
			m.send(protocol.EventICECandidate, &protocol.ICECandidate{To: s.remoteID, Candidate: raw})
		})
	})

	t.OnTrack(func(rm RemoteMedia) {
		m.post(func() {
			if s.epoch != epoch || !s.state.active() {
				return
			}
			m.emit(RemoteTrackEvent{PeerID: s.remoteID, Media: rm})
		})
	})

	t.OnFailure(func() {
		m.post(func() {
			if s.epoch != epoch || !s.state.active() {
				return
			}
			m.endSession(s, "transport failed")
		})
	})

	for _, track := range stream.Tracks() {
		if err := t.AddTrack(track); err != nil {
			m.failSession(s, NewError("add track", err))
			return false
		}
	}
	return true
}

func (m *Manager) flushCandidates(s *Session) {
	for _, c := range s.takeCandidates() {
		if err := s.transport.AddICECandidate(c); err != nil {
			m.log.Debug("flush candidate", "peer", s.remoteID, "err", err)
		}
	}
}

// failSession reports a local negotiation failure, notifies the peer
// best-effort and releases the session.
func (m *Manager) failSession(s *Session, err error) {
	m.emit(ErrorEvent{Err: err})
	m.send(protocol.EventCallEnded, &protocol.CallEnded{To: s.remoteID})
	m.endSession(s, "negotiation failed")
}

// endSession releases all session resources unconditionally, even with
// negotiation steps still in flight; the epoch bump turns their completion
// into a no-op.
func (m *Manager) endSession(s *Session, reason string) {
	if s.state == StateEnded {
		return
	}
	s.invalidate()
	if s.transport != nil {
		_ = s.transport.Close()
		s.transport = nil
	}
	s.pendingCandidates = nil
	s.remoteDescSet = false
	m.transition(s, StateEnded, reason)
	delete(m.sessions, s.remoteID)
	m.releaseMediaIfIdle()
}

func (m *Manager) teardownAll(reason string) {
	for _, s := range m.sessions {
		if s.state == StateEnded {
			continue
		}
		m.endSession(s, reason)
	}
}

// --- media ownership ------------------------------------------------------

// withLocalStream hands the shared local capture stream to ok, acquiring it
// first if needed. Concurrent acquirers coalesce onto one capture attempt.
// Both callbacks run on the event loop.
func (m *Manager) withLocalStream(ok func(*media.Stream), fail func(error)) {
	if m.localStream != nil {
		ok(m.localStream)
		return
	}

	m.captureWaiters = append(m.captureWaiters, captureWaiter{ok: ok, fail: fail})
	if m.capturing {
		return
	}
	m.capturing = true

	go func() {
		stream, err := m.capture.CameraAndMicrophone(context.Background())
		m.post(func() {
			m.capturing = false

			if err != nil {
				wrapped := WrapError("acquire camera and microphone", ErrCaptureFailed, err.Error())
				m.emit(ErrorEvent{Err: wrapped})
				m.failCaptureWaiters(wrapped)
				return
			}

			waiters := m.captureWaiters
			m.captureWaiters = nil

			if !m.hasActiveSessions() {
				// Every interested session ended while the device was being
				// acquired; don't hold its handle.
				stream.Close()
				return
			}
			if m.localStream != nil {
				m.localStream.Close()
			}
			m.localStream = stream
			for _, w := range waiters {
				w.ok(stream)
			}
		})
	}()
}

// switchSource swaps the local capture source. The previous stream's tracks
// are released before the replacement is acquired, so device handles never
// accumulate. The switch counts as a capture in flight: sessions starting
// negotiation meanwhile wait for it instead of opening a second capture.
func (m *Manager) switchSource(acquire func(context.Context) (*media.Stream, error), toScreen bool) {
	old := m.localStream
	m.localStream = nil
	old.Close()
	m.capturing = true

	go func() {
		stream, err := acquire(context.Background())
		m.post(func() {
			m.capturing = false
			if err != nil {
				m.emit(ErrorEvent{Err: WrapError("switch media source", ErrCaptureFailed, err.Error())})
				if toScreen {
					// The camera was released; try to get it back so the
					// call keeps flowing.
					m.recoverCamera()
					return
				}
				m.screenActive = false
				m.failCaptureWaiters(WrapError("switch media source", ErrCaptureFailed, err.Error()))
				return
			}
			m.adoptStream(stream, toScreen)
		})
	}()
}

// recoverCamera re-acquires the default source after a failed switch.
func (m *Manager) recoverCamera() {
	m.capturing = true
	go func() {
		stream, err := m.capture.CameraAndMicrophone(context.Background())
		m.post(func() {
			m.capturing = false
			if err != nil {
				wrapped := WrapError("re-acquire camera", ErrCaptureFailed, err.Error())
				m.emit(ErrorEvent{Err: wrapped})
				m.failCaptureWaiters(wrapped)
				return
			}
			m.adoptStream(stream, false)
		})
	}()
}

// adoptStream installs a freshly captured stream, swaps it into every active
// transport and hands it to sessions that were waiting for a capture. Any
// stream installed in the meantime is released first: there is never more
// than one live local stream.
func (m *Manager) adoptStream(stream *media.Stream, screen bool) {
	waiters := m.captureWaiters
	m.captureWaiters = nil

	if !m.hasActiveSessions() {
		stream.Close()
		m.screenActive = false
		return
	}
	if m.localStream != nil && m.localStream != stream {
		m.localStream.Close()
	}
	m.localStream = stream
	m.screenActive = screen

	for _, s := range m.sessions {
		if s.transport == nil || !s.state.active() {
			continue
		}
		for _, track := range stream.Tracks() {
			if err := s.transport.ReplaceTrack(track); err != nil {
				m.log.Debug("replace track", "peer", s.remoteID, "err", err)
			}
		}
	}
	for _, w := range waiters {
		w.ok(stream)
	}
	m.emit(ScreenShareEvent{Active: screen})
}

func (m *Manager) failCaptureWaiters(err error) {
	waiters := m.captureWaiters
	m.captureWaiters = nil
	for _, w := range waiters {
		w.fail(err)
	}
}

// releaseMediaIfIdle drops the local capture once no session needs it.
func (m *Manager) releaseMediaIfIdle() {
	if m.localStream == nil {
		return
	}
	if m.hasActiveSessions() {
		return
	}
	m.localStream.Close()
	m.localStream = nil
	m.screenActive = false
}

func (m *Manager) hasActiveSessions() bool {
	for _, s := range m.sessions {
		if s.state.active() {
			return true
		}
	}
	return false
}

// --- helpers --------------------------------------------------------------

func (m *Manager) transition(s *Session, state State, reason string) {
	s.state = state
	m.emit(SessionStateEvent{PeerID: s.remoteID, State: state, Reason: reason})
}

func (m *Manager) send(event string, data any) {
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		m.log.Error("encode envelope", "event", event, "err", err)
		return
	}
	m.sender.Send(env)
}

// post schedules fn on the event loop. Posts after shutdown are discarded.
func (m *Manager) post(fn func()) {
	select {
	case m.tasks <- fn:
	case <-m.done:
	}
}

func (m *Manager) emit(e Event) {
	select {
	case m.events <- e:
	default:
		m.log.Warn("event queue full, dropping", "type", fmt.Sprintf("%T", e))
	}
}
