package media

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	videoFrameInterval = 33 * time.Millisecond
	audioFrameInterval = 20 * time.Millisecond
)

// SyntheticCapturer produces generated test-pattern tracks instead of real
// device capture. It keeps the CLI usable on headless machines and carries
// the full track lifecycle (attach, replace, stop) end to end.
type SyntheticCapturer struct{}

var _ Capturer = SyntheticCapturer{}

func (SyntheticCapturer) CameraAndMicrophone(ctx context.Context) (*Stream, error) {
	return newSyntheticStream("camera")
}

func (SyntheticCapturer) ScreenCapture(ctx context.Context) (*Stream, error) {
	return newSyntheticStream("screen")
}

func newSyntheticStream(source string) (*Stream, error) {
	streamID := uuid.NewString()

	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		source+"-video", streamID,
	)
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		source+"-audio", streamID,
	)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go feed(video, videoPattern(source), videoFrameInterval, done)
	go feed(audio, silentAudioFrame(), audioFrameInterval, done)

	stop := func() { close(done) }
	return NewStream(streamID, []webrtc.TrackLocal{video, audio}, stop), nil
}

// feed writes the same generated frame at a fixed cadence until done closes.
func feed(track *webrtc.TrackLocalStaticSample, frame []byte, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = track.WriteSample(media.Sample{Data: frame, Duration: interval})
		}
	}
}

// videoPattern returns a tiny placeholder payload; receivers only need a
// steady sample flow, not a decodable picture.
func videoPattern(source string) []byte {
	frame := make([]byte, 128)
	seed := byte(len(source))
	for i := range frame {
		frame[i] = seed + byte(i)
	}
	return frame
}

func silentAudioFrame() []byte {
	return make([]byte, 64)
}
