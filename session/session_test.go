package session

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voxmcp/archive"
	"voxmcp/audio"
	"voxmcp/transcriber"
)

var mono16k = audio.Format{SampleRate: 16000, Channels: 1}

// speech returns ms milliseconds of a loud tone in format f.
func speech(f audio.Format, ms int) []float32 {
	n := f.SampleRate * ms / 1000
	out := make([]float32, n*f.Channels)
	for i := range n {
		v := float32(0.5 * math.Sin(2*math.Pi*220*float64(i)/float64(f.SampleRate)))
		for c := range f.Channels {
			out[i*f.Channels+c] = v
		}
	}
	return out
}

func testConfig(timeoutMs, silenceMs int, autoStop bool) Config {
	cfg := DefaultConfig()
	cfg.TimeoutMs = timeoutMs
	cfg.SilenceTimeoutMs = silenceMs
	cfg.AutoStop = autoStop
	return cfg
}

func newTestService(t *testing.T, samples []float32, f audio.Format, engine transcriber.Engine) *Service {
	t.Helper()
	return NewService(audio.NewFakeContext(samples, f, false), engine)
}

func within(got, want, tol time.Duration) bool {
	d := got - want
	return d >= -tol && d <= tol
}

// One fake chunk is 1024 frames, 64ms at 16kHz.
const chunkTol = 70 * time.Millisecond

func TestSilenceAutoStop(t *testing.T) {
	engine := transcriber.NewFake("find flights to Berlin", nil)
	svc := newTestService(t, speech(mono16k, 1000), mono16k, engine)

	res, err := svc.Listen(context.Background(), testConfig(5000, 2000, true))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if res.State != Completed || res.Text != "find flights to Berlin" {
		t.Errorf("result = %+v", res)
	}
	if res.Reason != StopSilence {
		t.Errorf("reason = %s, want silence", res.Reason)
	}
	if !within(res.Recorded, 3000*time.Millisecond, chunkTol) {
		t.Errorf("recorded %v, want about 3s", res.Recorded)
	}
}

func TestTimeoutWithoutAutoStop(t *testing.T) {
	engine := transcriber.NewFake("ok", nil)
	svc := newTestService(t, speech(mono16k, 1000), mono16k, engine)

	res, err := svc.Listen(context.Background(), testConfig(5000, 2000, false))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if res.Reason != StopTimeout {
		t.Errorf("reason = %s, want timeout", res.Reason)
	}
	if res.Recorded < 5000*time.Millisecond || res.Recorded > 5000*time.Millisecond+chunkTol {
		t.Errorf("recorded %v, want 5s plus at most one frame", res.Recorded)
	}
}

func TestTimeoutWinsTie(t *testing.T) {
	// Pure silence with equal limits: both conditions become true on the
	// same frame.
	svc := newTestService(t, nil, mono16k, transcriber.NewFake("", nil))
	res, err := svc.Listen(context.Background(), testConfig(1024, 1024, true))
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != StopTimeout {
		t.Errorf("reason = %s, want timeout", res.Reason)
	}
	if res.State != Completed {
		t.Errorf("state = %s", res.State)
	}
}

func TestSpeechResetsSilence(t *testing.T) {
	// Speech, 1.5s gap, speech again: the gap is shorter than the silence
	// limit so recording continues past it.
	var samples []float32
	samples = append(samples, speech(mono16k, 500)...)
	samples = append(samples, make([]float32, 16000*3/2)...)
	samples = append(samples, speech(mono16k, 500)...)

	svc := newTestService(t, samples, mono16k, transcriber.NewFake("x", nil))
	res, err := svc.Listen(context.Background(), testConfig(10000, 2000, true))
	if err != nil {
		t.Fatal(err)
	}
	if !within(res.Recorded, 4500*time.Millisecond, chunkTol) {
		t.Errorf("recorded %v, want about 4.5s", res.Recorded)
	}
}

func TestEngineReceivesProcessedAudio(t *testing.T) {
	stereo48k := audio.Format{SampleRate: 48000, Channels: 2}
	engine := transcriber.NewFake("ok", nil)
	svc := newTestService(t, speech(stereo48k, 500), stereo48k, engine)

	res, err := svc.Listen(context.Background(), testConfig(5000, 500, true))
	if err != nil {
		t.Fatal(err)
	}
	calls := engine.Calls()
	if len(calls) != 1 {
		t.Fatalf("engine called %d times", len(calls))
	}
	c := calls[0]
	if c.SampleRate != 16000 || c.Peak != 1 {
		t.Errorf("engine call = %+v, want 16kHz normalized", c)
	}
	if c.Samples != res.Samples {
		t.Errorf("engine got %d samples, result says %d", c.Samples, res.Samples)
	}
}

func TestConcurrentStart(t *testing.T) {
	// Realtime playback keeps the winner busy long enough for every
	// contender to observe it.
	engine := transcriber.NewFake("ok", nil)
	svc := NewService(audio.NewFakeContext(speech(mono16k, 200), mono16k, true), engine)
	cfg := testConfig(5000, 300, true)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var sessions []*Session
	var busy int
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := svc.Start(context.Background(), cfg)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrSessionBusy):
				busy++
			case err != nil:
				t.Errorf("Start: %v", err)
			default:
				sessions = append(sessions, sess)
			}
		}()
	}
	wg.Wait()

	if len(sessions) != 1 || busy != 7 {
		t.Fatalf("started %d sessions, %d busy; want 1 and 7", len(sessions), busy)
	}
	if !svc.Busy() {
		t.Error("service should be busy while a session runs")
	}

	res := sessions[0].Wait()
	if res.State != Completed {
		t.Errorf("state = %s", res.State)
	}
	if svc.Busy() {
		t.Error("busy flag still set after terminal state")
	}

	if _, err := svc.Listen(context.Background(), cfg); err != nil {
		t.Errorf("second Listen after completion: %v", err)
	}
}

func TestManualStop(t *testing.T) {
	svc := NewService(audio.NewFakeContext(speech(mono16k, 60000), mono16k, true), transcriber.NewFake("stopped", nil))
	sess, err := svc.Start(context.Background(), testConfig(30000, 2000, true))
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if !svc.Stop() {
		t.Fatal("Stop reported no active session")
	}
	res := sess.Wait()
	if res.Reason != StopManual || res.State != Completed || res.Text != "stopped" {
		t.Errorf("result = %+v", res)
	}
	if svc.Stop() {
		t.Error("Stop after completion should report no session")
	}
}

func TestWatchdogWithoutAudio(t *testing.T) {
	// A device that never delivers: the wall-clock watchdog still ends it.
	svc := NewService(stallContext{audio.NewFakeContext(nil, mono16k, false)}, transcriber.NewFake("", nil))

	start := time.Now()
	res, err := svc.Listen(context.Background(), testConfig(200, 100, true))
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != StopTimeout || res.State != Completed {
		t.Errorf("result = %+v", res)
	}
	if res.Recorded != 0 {
		t.Errorf("recorded %v with no audio", res.Recorded)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("watchdog took too long")
	}
}

func TestEngineFailure(t *testing.T) {
	boom := errors.New("model exploded")
	svc := newTestService(t, speech(mono16k, 200), mono16k, transcriber.NewFake("", boom))

	res, err := svc.Listen(context.Background(), testConfig(5000, 300, true))
	if !errors.Is(err, transcriber.ErrTranscriptionFailed) {
		t.Fatalf("err = %v, want ErrTranscriptionFailed", err)
	}
	if res.State != Failed {
		t.Errorf("state = %s, want failed", res.State)
	}
	if svc.Busy() {
		t.Error("busy leaked after engine failure")
	}
	// The service accepts the next session.
	if _, err := svc.Listen(context.Background(), testConfig(5000, 300, true)); errors.Is(err, ErrSessionBusy) {
		t.Errorf("Listen after failure: %v", err)
	}
}

func TestStreamErrorReleasesBusy(t *testing.T) {
	fake := audio.NewFakeContext(speech(mono16k, 5000), mono16k, false)
	fake.FailAfter = 5
	svc := NewService(fake, transcriber.NewFake("never", nil))

	res, err := svc.Listen(context.Background(), testConfig(30000, 2000, true))
	if !errors.Is(err, audio.ErrStream) {
		t.Fatalf("err = %v, want ErrStream", err)
	}
	if res.State != Failed || res.Reason != StopError {
		t.Errorf("result = %+v", res)
	}
	if svc.Busy() {
		t.Error("busy leaked after stream error")
	}
}

func TestDeviceUnavailableReleasesBusy(t *testing.T) {
	fake := audio.NewFakeContext(nil, mono16k, false)
	fake.OpenErr = errors.New("no such device")
	svc := NewService(fake, transcriber.NewFake("", nil))

	_, err := svc.Listen(context.Background(), DefaultConfig())
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
	if svc.Busy() || svc.Active() != nil {
		t.Error("service still claimed after failed open")
	}

	cfg := DefaultConfig()
	cfg.Device = "Missing Mic"
	if _, err := NewService(audio.NewFakeContext(nil, mono16k, false), transcriber.NewFake("", nil)).Listen(context.Background(), cfg); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("unknown device err = %v", err)
	}
}

func TestCancelDuringRecording(t *testing.T) {
	svc := NewService(audio.NewFakeContext(speech(mono16k, 60000), mono16k, true), transcriber.NewFake("partial", nil))
	ctx, cancel := context.WithCancel(context.Background())
	sess, err := svc.Start(ctx, testConfig(30000, 2000, true))
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	cancel()

	res := sess.Wait()
	if res.State != Cancelled || res.Text != "" {
		t.Errorf("result = %+v, want cancelled without text", res)
	}
	if !errors.Is(res.Err, ErrCancelled) {
		t.Errorf("err = %v", res.Err)
	}
	if svc.Busy() {
		t.Error("busy leaked after cancel")
	}
}

func TestCancelDuringTranscription(t *testing.T) {
	engine := transcriber.NewFake("", nil)
	engine.Block = true
	svc := newTestService(t, speech(mono16k, 200), mono16k, engine)

	ctx, cancel := context.WithCancel(context.Background())
	var states []State
	var mu sync.Mutex
	svc.observer = func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if len(states) == 0 || states[len(states)-1] != ev.State {
			states = append(states, ev.State)
		}
		if ev.State == Finalizing {
			go cancel()
		}
	}

	res, err := svc.Listen(ctx, testConfig(5000, 300, true))
	if !errors.Is(err, ErrCancelled) || res.State != Cancelled {
		t.Fatalf("result = %+v, err = %v", res, err)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []State{Recording, Finalizing, Cancelled}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states = %v, want %v", states, want)
		}
	}
}

func TestEmptyRecordingSkipsEngine(t *testing.T) {
	engine := transcriber.NewFake("should not run", nil)
	svc := NewService(stallContext{audio.NewFakeContext(nil, mono16k, false)}, engine)
	res, err := svc.Listen(context.Background(), testConfig(100, 50, true))
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "" || res.State != Completed {
		t.Errorf("result = %+v", res)
	}
	if len(engine.Calls()) != 0 {
		t.Error("engine called for an empty recording")
	}
}

func TestDebugArtifacts(t *testing.T) {
	for _, tt := range []struct {
		name          string
		raw, proc     bool
		wantArtifacts int
	}{
		{"raw only", true, false, 1},
		{"both", true, true, 2},
		{"none", false, false, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "debug")
			cfg := testConfig(5000, 300, true)
			cfg.Debug = archive.Config{Enabled: true, Dir: dir, SaveRaw: tt.raw, SaveProcessed: tt.proc}

			svc := newTestService(t, speech(mono16k, 200), mono16k, transcriber.NewFake("ok", nil))
			res, err := svc.Listen(context.Background(), cfg)
			if err != nil {
				t.Fatal(err)
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != tt.wantArtifacts || len(res.Artifacts) != tt.wantArtifacts {
				t.Errorf("files = %d, artifacts = %v, want %d", len(entries), res.Artifacts, tt.wantArtifacts)
			}
		})
	}
}

func TestDebugWriteFailureDoesNotFailSession(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(5000, 300, true)
	cfg.Debug = archive.Config{Enabled: true, Dir: blocker, SaveRaw: true, SaveProcessed: true}

	svc := newTestService(t, speech(mono16k, 200), mono16k, transcriber.NewFake("fine", nil))
	res, err := svc.Listen(context.Background(), cfg)
	if err != nil || res.Text != "fine" {
		t.Errorf("result = %+v, err = %v", res, err)
	}
}

// stallContext hands out captures that start but never deliver audio.
type stallContext struct {
	*audio.FakeContext
}

func (c stallContext) NewCapture(dev *audio.DeviceInfo, cfg audio.CaptureConfig) (audio.CaptureDevice, error) {
	capture, err := c.FakeContext.NewCapture(dev, cfg)
	if err != nil {
		return nil, err
	}
	return stallCapture{capture}, nil
}

type stallCapture struct {
	audio.CaptureDevice
}

func (stallCapture) Start() error { return nil }
func (stallCapture) Stop()        {}
