package proctor

import (
	"context"
	"sync"

	"github.com/yoockh/yooproctor/internal/utils"
)

type MediaConstraints struct {
	Audio  bool `json:"audio"`
	Video  bool `json:"video"`
	Width  int  `json:"width"`
	Height int  `json:"height"`
}

// DefaultConstraints asks for 720p video plus audio.
var DefaultConstraints = MediaConstraints{Audio: true, Video: true, Width: 1280, Height: 720}

// CaptureStream is a live audio+video source. Stop ends every track.
type CaptureStream interface {
	ID() string
	VideoActive() bool
	AudioActive() bool
	Stop()
}

type MediaDevices interface {
	GetUserMedia(ctx context.Context, c MediaConstraints) (CaptureStream, error)
}

// MediaEngine owns the capture stream and lends it to the recorder.
type MediaEngine struct {
	devices MediaDevices

	mu       sync.Mutex
	stream   CaptureStream
	released bool
}

func NewMediaEngine(devices MediaDevices) *MediaEngine {
	return &MediaEngine{devices: devices}
}

// Acquire requests camera and microphone. A failed attempt leaves the engine
// unready; callers retry by invoking Acquire again.
func (m *MediaEngine) Acquire(ctx context.Context) (CaptureStream, error) {
	const op = "MediaEngine.Acquire"

	m.mu.Lock()
	if m.stream != nil && !m.released {
		s := m.stream
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s, err := m.devices.GetUserMedia(ctx, DefaultConstraints)
	if err != nil {
		switch utils.CodeOf(err) {
		case utils.CodeTimeout:
			return nil, utils.E(utils.CodeTimeout, op, "the camera and microphone prompt was not answered in time", err)
		case utils.CodeUnavailable:
			return nil, utils.E(utils.CodeUnavailable, op, "no usable camera or microphone was found", err)
		}
		return nil, utils.E(utils.CodeForbidden, op, "camera and microphone access is required", err)
	}
	if s == nil || !s.VideoActive() || !s.AudioActive() {
		if s != nil {
			s.Stop()
		}
		return nil, utils.E(utils.CodeUnavailable, op, "camera or microphone is not producing a signal", nil)
	}

	m.mu.Lock()
	m.stream = s
	m.released = false
	m.mu.Unlock()
	return s, nil
}

func (m *MediaEngine) Stream() CaptureStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return nil
	}
	return m.stream
}

func (m *MediaEngine) CameraActive() bool {
	s := m.Stream()
	return s != nil && s.VideoActive()
}

func (m *MediaEngine) MicrophoneActive() bool {
	s := m.Stream()
	return s != nil && s.AudioActive()
}

// Release stops the stream's tracks. Only the first call has an effect.
func (m *MediaEngine) Release() bool {
	m.mu.Lock()
	s := m.stream
	if s == nil || m.released {
		m.mu.Unlock()
		return false
	}
	m.released = true
	m.mu.Unlock()

	s.Stop()
	return true
}
