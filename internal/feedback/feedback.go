// Package feedback drives the sound and haptic outputs the detector asks for.
package feedback

import (
	"log/slog"

	"github.com/relabs-tech/metal_detector/internal/detector"
)

// Device receives fire-and-forget feedback requests. Implementations must not block.
type Device interface {
	PlaySound()
	TriggerHaptic()
	StopSound()
}

// Dispatch forwards the actions of one engine step to d.
// A stop is sent before any new sound so the order is stable.
func Dispatch(d Device, a detector.Action) {
	if d == nil || a == 0 {
		return
	}
	if a.Has(detector.StopSound) {
		d.StopSound()
	}
	if a.Has(detector.PlaySound) {
		d.PlaySound()
	}
	if a.Has(detector.TriggerHaptic) {
		d.TriggerHaptic()
	}
}

// Multi fans every request out to all devices.
type Multi []Device

func (m Multi) PlaySound() {
	for _, d := range m {
		d.PlaySound()
	}
}

func (m Multi) TriggerHaptic() {
	for _, d := range m {
		d.TriggerHaptic()
	}
}

func (m Multi) StopSound() {
	for _, d := range m {
		d.StopSound()
	}
}

// Log only records requests. Used in demo mode and on headless rigs.
type Log struct {
	L *slog.Logger
}

func (l Log) logger() *slog.Logger {
	if l.L == nil {
		return slog.Default()
	}
	return l.L
}

func (l Log) PlaySound()     { l.logger().Debug("feedback: sound") }
func (l Log) TriggerHaptic() { l.logger().Debug("feedback: haptic") }
func (l Log) StopSound()     { l.logger().Debug("feedback: stop") }
