// Package beep plays short cues when recording starts and stops. Playback
// is fire-and-forget; a missing output device is never an error.
package beep

import (
	"math"
	"sync/atomic"
)

type Cue int

const (
	Start Cue = iota
	Stop
	Error
)

const sampleRate = 44100

var enabled atomic.Bool

// Enable turns cues on. They are off by default so the MCP server stays
// silent unless asked.
func Enable(on bool) { enabled.Store(on) }

func Enabled() bool { return enabled.Load() }

// Play starts the cue in the background and returns immediately.
func Play(c Cue) {
	if !enabled.Load() {
		return
	}
	go play(Tone(c, sampleRate, channels))
}

type toneSpec struct {
	freq, volume, decay float64
	dur                 float64 // seconds per tick
	gap                 float64 // seconds between ticks; zero means one tick
}

var cues = map[Cue]toneSpec{
	Start: {freq: 1200, volume: 0.5, decay: 60, dur: 0.2},
	Stop:  {freq: 900, volume: 0.5, decay: 40, dur: 0.2},
	Error: {freq: 350, volume: 0.6, decay: 30, dur: 0.08, gap: 0.05},
}

// Tone renders a cue as interleaved int16 PCM with the same sample on every
// channel. Error is a double tick.
func Tone(c Cue, rate, channels int) []int16 {
	spec, ok := cues[c]
	if !ok {
		return nil
	}
	tick := tick(spec, rate, channels)
	if spec.gap == 0 {
		return tick
	}
	gap := make([]int16, int(float64(rate)*spec.gap)*channels)
	out := make([]int16, 0, 2*len(tick)+len(gap))
	out = append(out, tick...)
	out = append(out, gap...)
	return append(out, tick...)
}

func tick(spec toneSpec, rate, channels int) []int16 {
	n := int(float64(rate) * spec.dur)
	out := make([]int16, n*channels)
	for i := range n {
		t := float64(i) / float64(rate)
		s := int16(math.Sin(2*math.Pi*spec.freq*t) * 32767 * spec.volume * math.Exp(-t*spec.decay))
		for ch := range channels {
			out[i*channels+ch] = s
		}
	}
	return out
}
