package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voxmcp/audio"
	"voxmcp/log"
	"voxmcp/transcriber"
)

// Service owns the microphone for the whole process and admits at most one
// session at a time. The busy flag is checked before the mutex so a second
// caller is rejected without waiting.
type Service struct {
	audio    audio.Context
	engine   transcriber.Engine
	observer Observer
	now      func() time.Time

	busy   atomic.Bool
	mu     sync.Mutex
	active *Session
}

type Option func(*Service)

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(actx audio.Context, engine transcriber.Engine, opts ...Option) *Service {
	s := &Service{audio: actx, engine: engine, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Busy() bool { return s.busy.Load() }

// Active returns the running session, if any.
func (s *Service) Active() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Service) EngineName() string { return s.engine.Name() }

// Start claims the service, opens the capture device and begins recording.
// It fails with ErrSessionBusy while another session is not yet terminal.
func (s *Service) Start(ctx context.Context, cfg Config) (*Session, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrSessionBusy
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	capture, err := s.openCapture(cfg.Device)
	if err != nil {
		s.busy.Store(false)
		return nil, err
	}

	sess := newSession(uuid.NewString(), cfg, capture, s.engine, s.observer, s.now())
	sess.transition(Recording, StopNone)
	if err := capture.Start(); err != nil {
		capture.Close()
		s.busy.Store(false)
		return nil, fmt.Errorf("%w: starting capture: %v", audio.ErrDeviceUnavailable, err)
	}
	s.active = sess

	go sess.run(ctx, func() {
		s.mu.Lock()
		if s.active == sess {
			s.active = nil
		}
		s.mu.Unlock()
		s.busy.Store(false)
	})
	return sess, nil
}

func (s *Service) openCapture(name string) (audio.CaptureDevice, error) {
	if s.audio == nil {
		return nil, fmt.Errorf("%w: no audio backend", audio.ErrDeviceUnavailable)
	}
	dev, err := audio.FindDevice(s.audio, name)
	if err != nil {
		return nil, err
	}
	capture, err := s.audio.NewCapture(dev, audio.CaptureConfig{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}
	if audio.IsBluetooth(capture.DeviceName()) {
		log.Warnf("%s looks like a Bluetooth headset; expect reduced audio quality", capture.DeviceName())
	}
	return capture, nil
}

// Listen runs a whole session and blocks until it is terminal.
func (s *Service) Listen(ctx context.Context, cfg Config) (Result, error) {
	sess, err := s.Start(ctx, cfg)
	if err != nil {
		return Result{Err: err}, err
	}
	res := sess.Wait()
	return res, res.Err
}

// Stop asks the active session to finish recording. It reports whether a
// session was running.
func (s *Service) Stop() bool {
	sess := s.Active()
	if sess == nil {
		return false
	}
	sess.Stop()
	return true
}

// TranscribeFile reads a PCM WAV file and transcribes it. It bypasses capture
// entirely and never touches the busy flag.
func (s *Service) TranscribeFile(ctx context.Context, path string) (string, error) {
	w, err := audio.ReadWAV(path)
	if err != nil {
		return "", err
	}
	processed := audio.Process(w.Samples, w.Format)
	if len(processed) == 0 {
		return "", fmt.Errorf("%w: %s has no audio after processing", audio.ErrInvalidAudioFormat, path)
	}
	log.Infof("transcribe_file: %s (%.1fs, %d Hz, %d ch)", path, w.Duration(), w.Format.SampleRate, w.Format.Channels)
	return Transcribe(ctx, s.engine, processed)
}
