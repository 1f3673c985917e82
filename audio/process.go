package audio

import "math"

// TargetSampleRate is the rate every processed buffer is delivered at.
const TargetSampleRate = 16000

// TargetFormat is the layout Process always returns.
var TargetFormat = Format{SampleRate: TargetSampleRate, Channels: 1}

// Process downmixes, resamples to 16kHz and peak-normalizes. The input is
// never modified.
func Process(samples []float32, f Format) []float32 {
	mono := Downmix(samples, f.Channels)
	resampled := Resample(mono, f.SampleRate, TargetSampleRate)
	return Normalize(resampled)
}

// Downmix averages interleaved channels per time step. Trailing samples that
// do not form a whole step are dropped.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	n := len(samples) / channels
	out := make([]float32, n)
	for i := range n {
		var sum float64
		for c := range channels {
			sum += float64(samples[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// ResampledLength is round(n * to / from).
func ResampledLength(n, from, to int) int {
	if from <= 0 || n == 0 {
		return 0
	}
	return int(math.Round(float64(n) * float64(to) / float64(from)))
}

// Resample converts mono samples between rates with linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	n := ResampledLength(len(samples), from, to)
	out := make([]float32, n)
	if n == 0 {
		return out
	}
	last := len(samples) - 1
	step := float64(from) / float64(to)
	for i := range n {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		a, b := float64(samples[idx]), float64(samples[idx+1])
		out[i] = float32(a + (b-a)*frac)
	}
	return out
}

// Peak is the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// Normalize scales samples so the peak magnitude is exactly 1. Silent or
// already-normalized buffers are returned unchanged.
func Normalize(samples []float32) []float32 {
	out := make([]float32, len(samples))
	copy(out, samples)
	peak := Peak(samples)
	if peak == 0 || peak == 1 {
		return out
	}
	p := float64(peak)
	for i, s := range out {
		out[i] = float32(float64(s) / p)
	}
	return out
}
