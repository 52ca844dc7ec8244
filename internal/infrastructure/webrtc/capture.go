package webrtc

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"
)

// MediaSource supplies encoded frames for one local track. NextSample blocks
// until the next frame is due, which paces the track pump.
type MediaSource interface {
	Label() string
	NextSample() (media.Sample, error)
	Close() error
}

// KeyframeForcer is implemented by video sources that can emit a keyframe on
// demand, used when the remote peer reports picture loss.
type KeyframeForcer interface {
	ForceKeyframe()
}

// CaptureDevice hands out the local audio source and one of possibly several
// video sources. Camera index 0 is the default camera.
type CaptureDevice interface {
	OpenAudio() (MediaSource, error)
	OpenVideo(camera int) (MediaSource, error)
	VideoSourceCount() int
}

// SyntheticDevice is the built-in capture device. It produces placeholder
// frames at the configured cadence, which keeps the whole media path
// exercisable on hosts without camera hardware.
type SyntheticDevice struct {
	Width     int
	Height    int
	FrameRate int
	Cameras   int
}

func NewSyntheticDevice(width, height, frameRate int) *SyntheticDevice {
	return &SyntheticDevice{
		Width:     width,
		Height:    height,
		FrameRate: frameRate,
		Cameras:   2,
	}
}

func (d *SyntheticDevice) OpenAudio() (MediaSource, error) {
	// 20ms opus frames
	return newSyntheticSource("synthetic-audio", 160, 20*time.Millisecond), nil
}

func (d *SyntheticDevice) OpenVideo(camera int) (MediaSource, error) {
	if camera < 0 || camera >= d.Cameras {
		return nil, fmt.Errorf("no camera at index %d", camera)
	}
	fr := d.FrameRate
	if fr <= 0 {
		fr = 30
	}
	frameSize := d.Width * d.Height / 100
	if frameSize <= 0 {
		frameSize = 1200
	}
	label := fmt.Sprintf("synthetic-camera-%d", camera)
	return newSyntheticSource(label, frameSize, time.Second/time.Duration(fr)), nil
}

func (d *SyntheticDevice) VideoSourceCount() int {
	return d.Cameras
}

type syntheticSource struct {
	label    string
	interval time.Duration
	payload  []byte

	mu     sync.Mutex
	closed bool
	last   time.Time
}

func newSyntheticSource(label string, frameSize int, interval time.Duration) *syntheticSource {
	return &syntheticSource{
		label:    label,
		interval: interval,
		payload:  make([]byte, frameSize),
	}
}

func (s *syntheticSource) Label() string { return s.label }

func (s *syntheticSource) NextSample() (media.Sample, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return media.Sample{}, io.EOF
	}
	last := s.last
	s.last = time.Now()
	s.mu.Unlock()

	if !last.IsZero() {
		if wait := s.interval - time.Since(last); wait > 0 {
			time.Sleep(wait)
		}
	}

	return media.Sample{Data: s.payload, Duration: s.interval}, nil
}

func (s *syntheticSource) ForceKeyframe() {}

func (s *syntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
