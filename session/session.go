package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"voxmcp/archive"
	"voxmcp/audio"
	"voxmcp/log"
	"voxmcp/transcriber"
)

const (
	frameQueueSize = 128
	eventInterval  = 100 * time.Millisecond
)

var (
	ErrSessionBusy = errors.New("a recording session is already active")
	ErrCancelled   = errors.New("session cancelled")
)

// Result is what a session reports once it reaches a terminal state.
type Result struct {
	SessionID string
	State     State
	Text      string
	Reason    StopReason
	Recorded  time.Duration // captured audio time
	Samples   int           // length of the processed 16kHz buffer
	Dropped   int
	Artifacts []string
	Err       error
}

// Event is a progress snapshot delivered to an Observer.
type Event struct {
	SessionID      string
	State          State
	Reason         StopReason
	Elapsed        time.Duration
	SilenceElapsed time.Duration
	LevelDB        float64 // peak of the latest frame; MinDB on state changes
}

// Observer receives session events on the session goroutine. It must return
// quickly.
type Observer func(Event)

// Session records from one capture device until silence, timeout, Stop or
// cancellation, then hands the processed buffer to the engine.
type Session struct {
	id       string
	cfg      Config
	capture  audio.CaptureDevice
	format   audio.Format
	engine   transcriber.Engine
	archiver *archive.Archiver
	observer Observer

	frames    chan audio.Frame
	streamErr chan error
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	dropped   atomic.Int64

	mu             sync.Mutex
	state          State
	startedAt      time.Time
	elapsed        time.Duration
	silenceElapsed time.Duration
	raw            []float32
	result         Result
}

func newSession(id string, cfg Config, capture audio.CaptureDevice, engine transcriber.Engine, observer Observer, now time.Time) *Session {
	s := &Session{
		id:        id,
		cfg:       cfg,
		capture:   capture,
		format:    capture.Format(),
		engine:    engine,
		archiver:  archive.New(cfg.Debug, now),
		observer:  observer,
		frames:    make(chan audio.Frame, frameQueueSize),
		streamErr: make(chan error, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		state:     Idle,
		startedAt: now,
	}
	capture.SetCallback(s.onSamples)
	capture.SetErrorCallback(s.onStreamError)
	return s
}

// onSamples runs on the audio thread: copy, enqueue, never wait.
func (s *Session) onSamples(samples []float32, _ uint32) {
	buf := make([]float32, len(samples))
	copy(buf, samples)
	select {
	case s.frames <- audio.Frame{Samples: buf, Format: s.format}:
	default:
		s.dropped.Add(1)
	}
}

func (s *Session) onStreamError(err error) {
	select {
	case s.streamErr <- err:
	default:
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Config() Config { return s.cfg }

func (s *Session) StartedAt() time.Time { return s.startedAt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns captured audio time and the current silence run.
func (s *Session) Elapsed() (elapsed, silence time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed, s.silenceElapsed
}

// Stop ends recording early. The session still transcribes what it has.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session is terminal.
func (s *Session) Wait() Result {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Session) transition(to State, reason StopReason) bool {
	s.mu.Lock()
	from := s.state
	if !canTransition(from, to) {
		s.mu.Unlock()
		return false
	}
	s.state = to
	ev := Event{SessionID: s.id, State: to, Reason: reason, Elapsed: s.elapsed, SilenceElapsed: s.silenceElapsed, LevelDB: audio.MinDB}
	s.mu.Unlock()

	log.SessionState(s.id, from.String(), to.String())
	s.emit(ev)
	return true
}

func (s *Session) emit(ev Event) {
	if s.observer != nil {
		s.observer(ev)
	}
}

// run drives the session to a terminal state. release is called after the
// result is stored and before Done closes.
func (s *Session) run(ctx context.Context, release func()) {
	defer func() {
		release()
		close(s.done)
	}()

	log.SessionStart(s.id, s.capture.DeviceName(), s.cfg.TimeoutMs, s.cfg.SilenceTimeoutMs, s.cfg.AutoStop)
	if w, ok := s.engine.(transcriber.Warmer); ok {
		go w.Warm()
	}

	reason, err := s.record(ctx)
	s.releaseCapture()

	var res Result
	switch {
	case reason == StopShutdown:
		res = s.terminate(Cancelled, reason, "", 0, ErrCancelled)
	case err != nil:
		res = s.terminate(Failed, reason, "", 0, err)
	default:
		res = s.finalize(ctx, reason)
	}

	log.SessionEnd(s.id, res.State.String(), res.Reason.String(), res.Recorded, res.Dropped, res.Err)
}

// record consumes frames until a stop condition holds. The watchdog covers
// the case where the device delivers nothing at all.
func (s *Session) record(ctx context.Context) (StopReason, error) {
	silence := newSilenceTracker(s.cfg.SilenceThresholdDB, s.cfg.silenceTimeout())
	watchdog := time.NewTimer(s.cfg.timeout())
	defer watchdog.Stop()

	var sinceEvent time.Duration
	for {
		select {
		case <-ctx.Done():
			return StopShutdown, ErrCancelled
		case err := <-s.streamErr:
			if !errors.Is(err, audio.ErrStream) {
				err = fmt.Errorf("%w: %v", audio.ErrStream, err)
			}
			return StopError, err
		case <-s.stopCh:
			return StopManual, nil
		case <-watchdog.C:
			return StopTimeout, nil
		case f := <-s.frames:
			level := audio.PeakDB(f.Samples)
			d := f.Duration()

			s.mu.Lock()
			s.raw = append(s.raw, f.Samples...)
			s.elapsed += d
			silent := false
			if s.cfg.AutoStop {
				silent = silence.Update(level, d)
				s.silenceElapsed = silence.Elapsed()
			}
			timedOut := s.elapsed >= s.cfg.timeout()
			ev := Event{SessionID: s.id, State: s.state, Elapsed: s.elapsed, SilenceElapsed: s.silenceElapsed, LevelDB: level}
			s.mu.Unlock()

			sinceEvent += d
			if sinceEvent >= eventInterval {
				sinceEvent = 0
				s.emit(ev)
			}

			// Timeout wins when both fire on the same frame.
			if timedOut {
				return StopTimeout, nil
			}
			if silent {
				return StopSilence, nil
			}
		}
	}
}

func (s *Session) releaseCapture() {
	s.capture.ClearCallback()
	s.capture.Stop()
	s.capture.Close()
}

func (s *Session) finalize(ctx context.Context, reason StopReason) Result {
	if !s.transition(Finalizing, reason) {
		return s.terminate(Failed, reason, "", 0, fmt.Errorf("session %s: cannot finalize from %s", s.id, s.State()))
	}

	s.mu.Lock()
	raw := s.raw
	s.mu.Unlock()

	// Archive errors are logged by the archiver and otherwise ignored.
	_ = s.archiver.SaveRaw(raw, s.format)
	processed := audio.Process(raw, s.format)
	_ = s.archiver.SaveProcessed(processed)

	if ctx.Err() != nil {
		return s.terminate(Cancelled, reason, "", 0, ErrCancelled)
	}
	if len(processed) == 0 {
		return s.terminate(Completed, reason, "", 0, nil)
	}

	text, err := Transcribe(ctx, s.engine, processed)
	switch {
	case errors.Is(err, ErrCancelled):
		return s.terminate(Cancelled, reason, "", 0, err)
	case err != nil:
		return s.terminate(Failed, reason, "", 0, err)
	}
	return s.terminate(Completed, reason, text, len(processed), nil)
}

func (s *Session) terminate(state State, reason StopReason, text string, samples int, err error) Result {
	s.transition(state, reason)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = Result{
		SessionID: s.id,
		State:     s.state,
		Text:      text,
		Reason:    reason,
		Recorded:  s.elapsed,
		Samples:   samples,
		Dropped:   int(s.dropped.Load()),
		Artifacts: s.archiver.Artifacts(),
		Err:       err,
	}
	return s.result
}

// Transcribe runs the engine on its own goroutine and races it against ctx.
// Engine errors come back wrapped in ErrTranscriptionFailed; cancellation as
// ErrCancelled.
func Transcribe(ctx context.Context, engine transcriber.Engine, samples []float32) (string, error) {
	type outcome struct {
		text string
		err  error
	}
	ch := make(chan outcome, 1)
	start := time.Now()
	go func() {
		text, err := engine.Transcribe(ctx, samples, audio.TargetSampleRate)
		ch <- outcome{text, err}
	}()

	audioS := float64(len(samples)) / audio.TargetSampleRate
	select {
	case <-ctx.Done():
		log.Transcription(engine.Name(), audioS, time.Since(start), 0, ctx.Err())
		return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case o := <-ch:
		log.Transcription(engine.Name(), audioS, time.Since(start), len(o.text), o.err)
		if o.err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
			return "", fmt.Errorf("%w: %s: %v", transcriber.ErrTranscriptionFailed, engine.Name(), o.err)
		}
		return o.text, nil
	}
}
