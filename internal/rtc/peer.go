// Package rtc adapts pion's PeerConnection to the call.Transport capability.
package rtc

import (
	"fmt"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/BhargavShekhar/meet-p2p/internal/call"
	"github.com/BhargavShekhar/meet-p2p/internal/config"
)

// Factory builds one PeerConnection per negotiation attempt, all sharing one
// webrtc.API instance.
type Factory struct {
	api *webrtc.API
	cfg *config.Client
}

var _ call.TransportFactory = (*Factory)(nil)

// NewFactory prepares the pion API with default codecs and quiet logging.
func NewFactory(cfg *config.Client) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = logging.LogLevelError

	settingEngine := webrtc.SettingEngine{LoggerFactory: loggerFactory}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
	)
	return &Factory{api: api, cfg: cfg}, nil
}

// NewTransport builds a fresh peer connection configured from the client's
// ICE settings.
func (f *Factory) NewTransport() (call.Transport, error) {
	iceServers := []webrtc.ICEServer{{URLs: f.cfg.STUNServers}}

	if turnServers := f.cfg.GetTURNServers(); turnServers != nil {
		username, password := f.cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if f.cfg.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	pc, err := f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return &Peer{pc: pc}, nil
}

// Peer wraps a single pion PeerConnection.
type Peer struct {
	pc       *webrtc.PeerConnection
	failOnce sync.Once
}

var _ call.Transport = (*Peer)(nil)

func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return *p.pc.LocalDescription(), nil
}

func (p *Peer) CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return *p.pc.LocalDescription(), nil
}

func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *Peer) AddTrack(track webrtc.TrackLocal) error {
	_, err := p.pc.AddTrack(track)
	return err
}

// ReplaceTrack swaps the outgoing track of the matching kind without
// renegotiating.
func (p *Peer) ReplaceTrack(track webrtc.TrackLocal) error {
	for _, sender := range p.pc.GetSenders() {
		current := sender.Track()
		if current == nil || current.Kind() != track.Kind() {
			continue
		}
		return sender.ReplaceTrack(track)
	}
	return fmt.Errorf("no sender for %s track", track.Kind())
}

func (p *Peer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (p *Peer) OnTrack(fn func(call.RemoteMedia)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(call.RemoteMedia{
			StreamID: track.StreamID(),
			Kind:     track.Kind().String(),
			Track:    track,
		})
	})
}

func (p *Peer) OnFailure(fn func()) {
	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			p.failOnce.Do(fn)
		}
	})
}

func (p *Peer) Close() error {
	return p.pc.Close()
}
