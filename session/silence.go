package session

import "time"

// silenceTracker accumulates continuous below-threshold audio time. Any frame
// at or above the threshold resets it.
type silenceTracker struct {
	thresholdDB float64
	limit       time.Duration
	elapsed     time.Duration
}

func newSilenceTracker(thresholdDB float64, limit time.Duration) *silenceTracker {
	return &silenceTracker{thresholdDB: thresholdDB, limit: limit}
}

// Update feeds one frame and reports whether the silence limit was reached.
func (t *silenceTracker) Update(levelDB float64, d time.Duration) bool {
	if levelDB >= t.thresholdDB {
		t.elapsed = 0
		return false
	}
	t.elapsed += d
	return t.elapsed >= t.limit
}

func (t *silenceTracker) Elapsed() time.Duration { return t.elapsed }
