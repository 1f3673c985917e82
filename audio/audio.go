package audio

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrDeviceUnavailable  = errors.New("audio input device unavailable")
	ErrStream             = errors.New("audio stream error")
	ErrFileNotFound       = errors.New("audio file not found")
	ErrInvalidAudioFormat = errors.New("invalid audio format")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Format describes an interleaved sample layout.
type Format struct {
	SampleRate int
	Channels   int
}

// Frame is one callback's worth of interleaved float samples in [-1, 1].
type Frame struct {
	Samples []float32
	Format  Format
}

// FrameCount is the number of time steps in the frame.
func (f Frame) FrameCount() int {
	if f.Format.Channels <= 0 {
		return 0
	}
	return len(f.Samples) / f.Format.Channels
}

func (f Frame) Duration() time.Duration {
	if f.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.FrameCount()) * time.Second / time.Duration(f.Format.SampleRate)
}

// DataCallback receives converted samples. It runs on the host audio thread
// and must not block.
type DataCallback func(samples []float32, frameCount uint32)

// ErrorCallback is invoked once when the stream dies without Stop being called.
type ErrorCallback func(err error)

// CaptureConfig requests a sample layout. Zero values select the device's
// native rate and channel count.
type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	Format() Format
	DeviceName() string
	SetCallback(cb DataCallback)
	ClearCallback()
	SetErrorCallback(cb ErrorCallback)
}

// FindDevice returns the device whose name matches exactly, or nil when name
// is empty (system default).
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no device named %q", ErrDeviceUnavailable, name)
}
