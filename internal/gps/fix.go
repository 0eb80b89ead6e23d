package gps

import "sync"

// Fix represents a single combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	Time       string  `json:"time"`        // e.g. "12:34:56"
	Date       string  `json:"date"`        // e.g. "2025-12-06"
	Latitude   float64 `json:"lat"`         // decimal degrees
	Longitude  float64 `json:"lon"`         // decimal degrees
	Altitude   float64 `json:"alt_m"`       // meters above MSL (from GGA)
	Satellites int64   `json:"satellites"`  // in use (from GGA)
	SpeedKnots float64 `json:"speed_knots"` // speed over ground
	CourseDeg  float64 `json:"course_deg"`  // course over ground
	Validity   string  `json:"validity"`    // "A" (valid) / "V" (void), etc.
}

// Valid reports whether the receiver flagged the fix as usable.
func (f Fix) Valid() bool {
	return f.Validity == "A"
}

// Latest keeps the most recent valid fix. Safe for concurrent use.
type Latest struct {
	mu   sync.RWMutex
	fix  Fix
	have bool
}

// Update stores f if it is valid.
func (l *Latest) Update(f Fix) {
	if !f.Valid() {
		return
	}
	l.mu.Lock()
	l.fix = f
	l.have = true
	l.mu.Unlock()
}

// LatestFix returns the last valid fix, if any.
func (l *Latest) LatestFix() (Fix, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fix, l.have
}
