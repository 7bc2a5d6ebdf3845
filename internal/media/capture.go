// Package media abstracts local capture devices behind a small interface so
// the call core never talks to hardware directly.
package media

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Stream is one local capture stream: a bundle of live outgoing tracks plus
// the means to stop producing into them. A participant holds at most one
// local stream at a time; Close must release the underlying source before a
// replacement is acquired.
type Stream struct {
	id     string
	tracks []webrtc.TrackLocal
	stop   func()
}

// NewStream bundles tracks with their stop function.
func NewStream(id string, tracks []webrtc.TrackLocal, stop func()) *Stream {
	return &Stream{id: id, tracks: tracks, stop: stop}
}

// ID returns the stream identifier shared by all its tracks.
func (s *Stream) ID() string { return s.id }

// Tracks returns the outgoing tracks to attach to a peer transport.
func (s *Stream) Tracks() []webrtc.TrackLocal { return s.tracks }

// VideoTrack returns the stream's video track, or nil.
func (s *Stream) VideoTrack() webrtc.TrackLocal {
	for _, t := range s.tracks {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			return t
		}
	}
	return nil
}

// Close stops the underlying producers. Safe to call more than once.
func (s *Stream) Close() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

// Capturer acquires local media sources.
type Capturer interface {
	// CameraAndMicrophone opens the default camera and microphone.
	CameraAndMicrophone(ctx context.Context) (*Stream, error)

	// ScreenCapture opens a screen/window source with the microphone.
	ScreenCapture(ctx context.Context) (*Stream, error)
}
