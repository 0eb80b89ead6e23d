// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package detector turns raw magnetometer samples into a calibrated,
// hysteresis-gated metal detection signal.
//
// Per sample:
//
//	|B| → freeze gate → calibration (first 60 samples) or baseline EMA
//	    → diff = ||B| - baseline| → mode threshold → level 0-100
//	    → detected state (Schmitt trigger) → feedback requests
//
// The Engine has no clock and no I/O. Callers pass the arrival time of each
// sample and act on the returned Result. An Engine must not be used from more
// than one goroutine at a time.
package detector

import (
	"time"

	"github.com/relabs-tech/metal_detector/internal/mag"
)

const (
	// CalibrationSamples is how many magnitudes are averaged into the first baseline.
	CalibrationSamples = 60
	// BaselineAlpha is the EMA weight of a new magnitude while nothing is detected.
	BaselineAlpha = 0.015
	// NoiseFloor is the deviation (µT) below which the level is always 0.
	NoiseFloor = 3.0

	holdFactor  = 0.5 // fraction of the threshold that sustains a detection
	holdLevel   = 10
	clearFactor = 0.4 // fraction of the threshold below which a detection may clear
	clearLevel  = 10
)

// Action is a set of feedback requests produced by one engine step.
type Action uint8

const (
	PlaySound Action = 1 << iota
	TriggerHaptic
	StopSound
)

// Has reports whether all bits of b are set in a.
func (a Action) Has(b Action) bool { return a&b == b }

func (a Action) String() string {
	if a == 0 {
		return "none"
	}
	s := ""
	for _, n := range []struct {
		a    Action
		name string
	}{{PlaySound, "sound"}, {TriggerHaptic, "haptic"}, {StopSound, "stop"}} {
		if a.Has(n.a) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	return s
}

// Config is the externally configurable part of the engine.
type Config struct {
	Mode             Mode
	Sensitivity      float64 // 0-100, clamped
	SoundEnabled     bool
	VibrationEnabled bool
}

// DefaultConfig returns metal mode at mid sensitivity with all feedback on.
func DefaultConfig() Config {
	return Config{
		Mode:             MetalDetector,
		Sensitivity:      50,
		SoundEnabled:     true,
		VibrationEnabled: true,
	}
}

// Result is the outcome of processing one sample.
type Result struct {
	Field      float64 // |B| of this sample in µT (last accepted value when Dropped)
	Baseline   float64
	Level      float64 // 0-100
	Detected   bool
	Calibrated bool
	Actions    Action

	// Dropped is set when the sample never reached calibration or detection.
	Dropped bool
	// RestartRequested asks the caller to tear the sensor subscription down
	// and start it again. It is raised once per freeze.
	RestartRequested bool
}

// Engine holds the detector state. Create it with New.
type Engine struct {
	mode             Mode
	sensitivity      float64
	soundEnabled     bool
	vibrationEnabled bool

	calibrated  bool
	calibration []float64
	baseline    float64
	level       float64
	detected    bool
	field       float64

	freeze freezeWatch
	sound  Cooldown
	haptic Cooldown
}

// New creates an engine in the uncalibrated state.
func New(cfg Config) *Engine {
	e := &Engine{
		mode:             cfg.Mode,
		sensitivity:      ClampSensitivity(cfg.Sensitivity),
		soundEnabled:     cfg.SoundEnabled,
		vibrationEnabled: cfg.VibrationEnabled,
		sound:            Cooldown{Interval: SoundCooldown},
		haptic:           Cooldown{Interval: HapticCooldown},
	}
	e.Reset()
	return e
}

// Reset discards calibration and all live outputs. Feedback cooldowns are kept.
func (e *Engine) Reset() {
	e.calibrated = false
	e.calibration = make([]float64, 0, CalibrationSamples)
	e.baseline = 0
	e.level = 0
	e.detected = false
	e.field = 0
	e.freeze = freezeWatch{}
}

// SetMode switches mode. A change resets the engine and asks for any ongoing
// feedback to stop; setting the current mode again does nothing.
func (e *Engine) SetMode(m Mode) Action {
	if m == e.mode {
		return 0
	}
	e.mode = m
	e.Reset()
	return StopSound
}

// SetSensitivity sets the sensitivity, clamped to [0,100].
func (e *Engine) SetSensitivity(v float64) {
	e.sensitivity = ClampSensitivity(v)
}

// SetSoundEnabled gates PlaySound requests. Detection math is unaffected.
func (e *Engine) SetSoundEnabled(on bool) { e.soundEnabled = on }

// SetVibrationEnabled gates TriggerHaptic requests. Detection math is unaffected.
func (e *Engine) SetVibrationEnabled(on bool) { e.vibrationEnabled = on }

func (e *Engine) Mode() Mode             { return e.mode }
func (e *Engine) Sensitivity() float64   { return e.sensitivity }
func (e *Engine) SoundEnabled() bool     { return e.soundEnabled }
func (e *Engine) VibrationEnabled() bool { return e.vibrationEnabled }
func (e *Engine) Calibrated() bool       { return e.calibrated }
func (e *Engine) Baseline() float64      { return e.baseline }
func (e *Engine) Level() float64         { return e.level }
func (e *Engine) Detected() bool         { return e.detected }
func (e *Engine) Field() float64         { return e.field }

// Threshold returns the effective threshold for the current mode and sensitivity.
func (e *Engine) Threshold() float64 {
	return e.mode.Threshold(e.sensitivity)
}

// ProcessSample runs one detection step for a sample that arrived at now.
func (e *Engine) ProcessSample(s mag.Sample, now time.Time) Result {
	if !s.Valid() {
		r := e.result()
		r.Dropped = true
		return r
	}

	m := s.Magnitude()
	if e.freeze.stale(m, now) {
		r := e.result()
		r.Dropped = true
		r.RestartRequested = e.freeze.request()
		return r
	}
	e.field = m

	if !e.calibrated {
		e.calibrate(m)
		return e.result()
	}

	if !e.detected {
		e.baseline = BaselineAlpha*m + (1-BaselineAlpha)*e.baseline
	}

	diff := m - e.baseline
	if diff < 0 {
		diff = -diff
	}
	threshold := e.Threshold()
	e.level = level(diff, threshold)

	was := e.detected
	e.detected = e.gate(was, diff, threshold)

	r := e.result()
	if e.detected {
		if e.soundEnabled && e.sound.Ready(now) {
			r.Actions |= PlaySound
		}
		if e.vibrationEnabled && e.haptic.Ready(now) {
			r.Actions |= TriggerHaptic
		}
	} else if was {
		r.Actions |= StopSound
	}
	return r
}

func (e *Engine) calibrate(m float64) {
	e.level = 0
	e.calibration = append(e.calibration, m)
	if len(e.calibration) < CalibrationSamples {
		return
	}

	var sum float64
	for _, v := range e.calibration {
		sum += v
	}
	e.baseline = sum / float64(len(e.calibration))
	e.calibrated = true
	e.calibration = nil
}

// gate applies the asymmetric enter/hold/clear bands. Any diff/level pair not
// covered by a band keeps the previous state.
func (e *Engine) gate(was bool, diff, threshold float64) bool {
	switch {
	case diff > threshold && e.level > e.mode.TriggerLevel():
		return true
	case was && diff > threshold*holdFactor && e.level > holdLevel:
		return true
	case diff < threshold*clearFactor && e.level < clearLevel:
		return false
	default:
		return was
	}
}

// level maps a deviation to 0-100 relative to the threshold.
func level(diff, threshold float64) float64 {
	if diff < NoiseFloor || diff <= threshold {
		return 0
	}
	l := (diff - threshold) / (threshold * 2) * 100
	if l > 100 {
		return 100
	}
	return l
}

func (e *Engine) result() Result {
	return Result{
		Field:      e.field,
		Baseline:   e.baseline,
		Level:      e.level,
		Detected:   e.detected,
		Calibrated: e.calibrated,
	}
}
