package audio

import (
	"fmt"
	"sync"
	"time"
)

const fakeFrameSize = 1024

// FakeContext replays a fixed buffer through a capture device. Once the
// buffer is exhausted it keeps delivering silence, like an idle microphone.
type FakeContext struct {
	samples  []float32
	format   Format
	realtime bool

	// OpenErr is returned by NewCapture when set.
	OpenErr error
	// FailAfter reports ErrStream after this many chunks when positive.
	FailAfter int
}

func NewFakeContext(samples []float32, format Format, realtime bool) *FakeContext {
	return &FakeContext{samples: samples, format: format, realtime: realtime}
}

func NewFakeContextFromWAV(wavPath string, realtime bool) (*FakeContext, error) {
	w, err := ReadWAV(wavPath)
	if err != nil {
		return nil, err
	}
	return NewFakeContext(w.Samples, w.Format, realtime), nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	return &FakeCapture{
		samples:   f.samples,
		format:    f.format,
		realtime:  f.realtime,
		failAfter: f.FailAfter,
		audioDone: make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	samples   []float32
	format    Format
	realtime  bool
	failAfter int
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	onError  ErrorCallback
	stopCh   chan struct{}
	feedDone chan struct{}
	started  bool
	closed   bool
}

// AudioDone closes once the whole buffer has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) Format() Format { return f.format }

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) SetErrorCallback(cb ErrorCallback) {
	f.mu.Lock()
	f.onError = cb
	f.mu.Unlock()
}

// Started reports whether Start was called and Stop was not.
func (f *FakeCapture) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeCapture) callbacks() (DataCallback, ErrorCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb, f.onError
}

func (f *FakeCapture) Start() error {
	if f.format.SampleRate <= 0 || f.format.Channels <= 0 {
		return fmt.Errorf("%w: fake format %+v", ErrDeviceUnavailable, f.format)
	}
	f.mu.Lock()
	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	chunk := fakeFrameSize * f.format.Channels
	interval := time.Millisecond
	if f.realtime {
		interval = time.Duration(fakeFrameSize) * time.Second / time.Duration(f.format.SampleRate)
	}

	go func() {
		defer close(feedDone)
		pos := 0
		sent := 0
		audioFinished := false
		silence := make([]float32, chunk)
		for {
			select {
			case <-stopCh:
				return
			default:
			}

			cb, onErr := f.callbacks()
			if f.failAfter > 0 && sent >= f.failAfter {
				if onErr != nil {
					onErr(fmt.Errorf("%w: fake device disconnected", ErrStream))
				}
				<-stopCh
				return
			}
			if cb != nil {
				if pos < len(f.samples) {
					end := min(pos+chunk, len(f.samples))
					data := make([]float32, end-pos)
					copy(data, f.samples[pos:end])
					cb(data, uint32(len(data)/f.format.Channels))
					pos = end
				} else {
					if !audioFinished {
						audioFinished = true
						close(f.audioDone)
					}
					cb(silence, fakeFrameSize)
				}
				sent++
			}

			select {
			case <-stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stopCh, feedDone := f.stopCh, f.feedDone
	f.started = false
	f.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-feedDone
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}
