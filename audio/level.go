package audio

import "math"

// MinDB is reported for digital silence.
const MinDB = -100.0

// DefaultSilenceThresholdDB is the peak level below which a frame counts as
// silent.
const DefaultSilenceThresholdDB = -30.0

// ToDB converts a linear amplitude (full scale = 1) to dBFS, clamped at MinDB.
func ToDB(amplitude float64) float64 {
	if amplitude <= 0 {
		return MinDB
	}
	db := 20 * math.Log10(amplitude)
	if db < MinDB {
		return MinDB
	}
	return db
}

// PeakDB is the peak level of the samples in dBFS.
func PeakDB(samples []float32) float64 {
	return ToDB(float64(Peak(samples)))
}

// RMSDB is the RMS level of the samples in dBFS.
func RMSDB(samples []float32) float64 {
	if len(samples) == 0 {
		return MinDB
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	return ToDB(math.Sqrt(sumSquares / float64(len(samples))))
}
