package beep

import "testing"

func TestToneLengths(t *testing.T) {
	for _, tt := range []struct {
		cue      Cue
		channels int
		want     int
	}{
		{Start, 1, 8820},
		{Start, 2, 17640},
		{Stop, 2, 17640},
		// two 80ms ticks around a 50ms gap
		{Error, 1, 3528*2 + 2205},
	} {
		if got := len(Tone(tt.cue, 44100, tt.channels)); got != tt.want {
			t.Errorf("Tone(%d, ch=%d) = %d samples, want %d", tt.cue, tt.channels, got, tt.want)
		}
	}
	if Tone(Cue(99), 44100, 1) != nil {
		t.Error("unknown cue should render nothing")
	}
}

func TestToneDecays(t *testing.T) {
	s := Tone(Start, 44100, 1)
	peak := func(from, to int) int16 {
		var p int16
		for _, v := range s[from:to] {
			p = max(p, v, -v)
		}
		return p
	}
	head, tail := peak(0, 441), peak(len(s)-441, len(s))
	if head < 10000 || tail >= head/10 {
		t.Errorf("head peak %d, tail peak %d: want a loud attack and a quiet tail", head, tail)
	}
}

func TestToneChannelsMatch(t *testing.T) {
	s := Tone(Stop, 44100, 2)
	for i := 0; i < len(s); i += 2 {
		if s[i] != s[i+1] {
			t.Fatalf("frame %d: L=%d R=%d", i/2, s[i], s[i+1])
		}
	}
}

func TestErrorToneHasGap(t *testing.T) {
	s := Tone(Error, 44100, 1)
	gapStart, gapEnd := 3528, 3528+2205
	for _, v := range s[gapStart:gapEnd] {
		if v != 0 {
			t.Fatal("gap between error ticks is not silent")
		}
	}
}

func TestPlayDisabledIsNoop(t *testing.T) {
	Enable(false)
	Play(Start)
	if Enabled() {
		t.Error("Enabled() after Enable(false)")
	}
}
