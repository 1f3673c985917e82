package audio

import (
	"math"
	"testing"
)

func TestPeakDB(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   []float32
		want float64
	}{
		{"full scale", []float32{1, -0.5}, 0},
		{"half", []float32{0.5, -0.25}, -6.0206},
		{"negative peak", []float32{0.01, -0.1}, -20},
		{"silence", []float32{0, 0, 0}, MinDB},
		{"empty", nil, MinDB},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeakDB(tt.in); math.Abs(got-tt.want) > 0.001 {
				t.Errorf("PeakDB = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestRMSDBSine(t *testing.T) {
	// RMS of a full-scale sine is 1/sqrt(2), about -3 dBFS.
	got := RMSDB(genSine(1000, 16000, 16000, 1))
	if math.Abs(got-(-3.0103)) > 0.01 {
		t.Errorf("RMSDB = %.4f, want about -3.01", got)
	}
}

func TestThresholdSeparatesSpeechFromSilence(t *testing.T) {
	loud := genSine(300, 16000, 1024, 0.2)
	quiet := genSine(300, 16000, 1024, 0.01)
	if PeakDB(loud) < DefaultSilenceThresholdDB {
		t.Errorf("loud frame at %.1f dB classified as silent", PeakDB(loud))
	}
	if PeakDB(quiet) >= DefaultSilenceThresholdDB {
		t.Errorf("quiet frame at %.1f dB classified as sound", PeakDB(quiet))
	}
}
