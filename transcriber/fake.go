package transcriber

import (
	"context"
	"sync"
	"time"
)

// Fake returns a fixed transcript or error. Delay makes the call take that
// long; Block makes it wait for ctx cancellation.
type Fake struct {
	text  string
	err   error
	Delay time.Duration
	Block bool

	mu    sync.Mutex
	calls []FakeCall
}

type FakeCall struct {
	Samples    int
	SampleRate int
	Peak       float32
}

func NewFake(text string, err error) *Fake {
	return &Fake{text: text, err: err}
}

func (f *Fake) Name() string { return EngineFake }

func (f *Fake) Close() error { return nil }

func (f *Fake) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	var peak float32
	for _, s := range samples {
		peak = max(peak, s, -s)
	}
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Samples: len(samples), SampleRate: sampleRate, Peak: peak})
	f.mu.Unlock()

	if f.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// Calls returns every Transcribe invocation so far.
func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}
