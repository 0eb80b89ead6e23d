package detector

import "time"

// Reading is the detection-state snapshot distributed to displays and
// subscribers.
type Reading struct {
	Session     string    `json:"session,omitempty"`
	Mode        Mode      `json:"mode"`
	Sensitivity float64   `json:"sensitivity"`
	Field       float64   `json:"field_ut"`
	Baseline    float64   `json:"baseline_ut"`
	Threshold   float64   `json:"threshold_ut"`
	Level       float64   `json:"level"`
	Detected    bool      `json:"detected"`
	Calibrated  bool      `json:"calibrated"`
	Time        time.Time `json:"time"`

	// Sampled marks readings produced by a processed sample, as opposed to
	// the zeroed state published on stop or mode change.
	Sampled bool `json:"-"`
}

// Reading returns the current outputs of the engine stamped with t.
func (e *Engine) Reading(t time.Time) Reading {
	return Reading{
		Mode:        e.mode,
		Sensitivity: e.sensitivity,
		Field:       e.field,
		Baseline:    e.baseline,
		Threshold:   e.Threshold(),
		Level:       e.level,
		Detected:    e.detected,
		Calibrated:  e.calibrated,
		Time:        t,
	}
}
