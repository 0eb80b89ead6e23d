package detector

import (
	"math"
	"time"
)

const (
	// FreezeEpsilon is the smallest magnitude change (µT) that counts as a fresh reading.
	FreezeEpsilon = 0.01
	// FreezeTimeout is how long the magnitude may stay within FreezeEpsilon
	// before the stream is considered stuck.
	FreezeTimeout = 800 * time.Millisecond
)

// freezeWatch detects a sensor stream that keeps repeating the same value.
type freezeWatch struct {
	primed     bool
	last       float64
	lastChange time.Time
	reported   bool
}

// stale records m and reports whether the stream has been flat for longer
// than FreezeTimeout.
func (f *freezeWatch) stale(m float64, now time.Time) bool {
	if !f.primed {
		f.primed = true
		f.last = m
		f.lastChange = now
		return false
	}

	changed := math.Abs(m-f.last) >= FreezeEpsilon
	f.last = m
	if changed {
		f.lastChange = now
		f.reported = false
		return false
	}
	return now.Sub(f.lastChange) > FreezeTimeout
}

// request returns true the first time it is called for a given freeze.
func (f *freezeWatch) request() bool {
	if f.reported {
		return false
	}
	f.reported = true
	return true
}
