// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package feedback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIO drives a piezo buzzer and a vibration motor from two output pins.
// Each request raises the pin and a timer drops it after the pulse length.
type GPIO struct {
	log *slog.Logger

	buzzer *pulsePin
	motor  *pulsePin
}

// GPIOOpts configures the pins. An empty pin name disables that output.
type GPIOOpts struct {
	BuzzerPin    string
	VibrationPin string
	SoundPulse   time.Duration
	HapticPulse  time.Duration
}

// NewGPIO initializes periph and looks up the configured pins.
func NewGPIO(opts GPIOOpts, log *slog.Logger) (*GPIO, error) {
	if log == nil {
		log = slog.Default()
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("feedback: periph host init: %w", err)
	}

	g := &GPIO{log: log}
	var err error
	if g.buzzer, err = openPulsePin(opts.BuzzerPin, opts.SoundPulse); err != nil {
		return nil, fmt.Errorf("feedback: buzzer: %w", err)
	}
	if g.motor, err = openPulsePin(opts.VibrationPin, opts.HapticPulse); err != nil {
		return nil, fmt.Errorf("feedback: vibration motor: %w", err)
	}
	log.Info("feedback: gpio outputs ready", "buzzer", opts.BuzzerPin, "vibration", opts.VibrationPin)
	return g, nil
}

func (g *GPIO) PlaySound() {
	if err := g.buzzer.pulse(); err != nil {
		g.log.Warn("feedback: buzzer pulse failed", "err", err)
	}
}

func (g *GPIO) TriggerHaptic() {
	if err := g.motor.pulse(); err != nil {
		g.log.Warn("feedback: motor pulse failed", "err", err)
	}
}

func (g *GPIO) StopSound() {
	if err := g.buzzer.off(); err != nil {
		g.log.Warn("feedback: buzzer off failed", "err", err)
	}
}

// Close drives both outputs low.
func (g *GPIO) Close() error {
	if err := g.buzzer.off(); err != nil {
		return err
	}
	return g.motor.off()
}

type pulsePin struct {
	pin   gpio.PinOut
	width time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func openPulsePin(name string, width time.Duration) (*pulsePin, error) {
	if name == "" {
		return &pulsePin{}, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pin %q not found", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("pin %q: %w", name, err)
	}
	if width <= 0 {
		width = 100 * time.Millisecond
	}
	return &pulsePin{pin: p, width: width}, nil
}

func (p *pulsePin) pulse() error {
	if p.pin == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.pin.Out(gpio.High); err != nil {
		return err
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.width, func() {
		_ = p.off()
	})
	return nil
}

func (p *pulsePin) off() error {
	if p.pin == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return p.pin.Out(gpio.Low)
}
