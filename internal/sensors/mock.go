// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"log/slog"
	"math"
	"time"

	"github.com/relabs-tech/metal_detector/internal/mag"
)

// MockOpts shapes the synthetic field produced by Mock.
type MockOpts struct {
	Ambient   float64       // µT, default 48
	Noise     float64       // µT amplitude of the wobble, default 0.4
	PassEvery time.Duration // period of a simulated metal pass, 0 disables
	PassWidth time.Duration // duration of one pass, default 1.5s
	PassPeak  float64       // µT added at the centre of a pass, default 150
	// StuckAfter freezes the output at its current value once elapsed,
	// imitating a sensor that stopped updating. 0 disables.
	StuckAfter time.Duration
}

// Mock generates a smooth ambient field with periodic metal passes.
type Mock struct {
	*mag.Poller

	opts  MockOpts
	start time.Time
	now   func() time.Time
	stuck *mag.Sample
}

// NewMock creates a mock source that starts its timeline now.
func NewMock(opts MockOpts, log *slog.Logger) *Mock {
	if opts.Ambient == 0 {
		opts.Ambient = 48
	}
	if opts.Noise == 0 {
		opts.Noise = 0.4
	}
	if opts.PassWidth == 0 {
		opts.PassWidth = 1500 * time.Millisecond
	}
	if opts.PassPeak == 0 {
		opts.PassPeak = 150
	}
	m := &Mock{opts: opts, now: time.Now}
	m.start = m.now()
	m.Poller = mag.NewPoller(m, log)
	return m
}

// Subscribe restarts the timeline, so a stuck mock recovers after the
// scanner resubscribes.
func (m *Mock) Subscribe(interval time.Duration, fn func(mag.Sample)) error {
	m.start = m.now()
	m.stuck = nil
	return m.Poller.Subscribe(interval, fn)
}

// Read returns the sample for the current point of the timeline.
func (m *Mock) Read() (mag.Sample, error) {
	elapsed := m.now().Sub(m.start)
	if m.opts.StuckAfter > 0 && elapsed >= m.opts.StuckAfter {
		if m.stuck == nil {
			s := m.at(m.opts.StuckAfter)
			m.stuck = &s
		}
		return *m.stuck, nil
	}
	return m.at(elapsed), nil
}

func (m *Mock) at(elapsed time.Duration) mag.Sample {
	t := elapsed.Seconds()
	field := m.opts.Ambient + m.opts.Noise*(math.Sin(t*7)+0.5*math.Sin(t*2.3))
	field += m.pass(elapsed)

	// Fixed direction so only the magnitude moves.
	return mag.Sample{
		X: field * 0.36,
		Y: field * 0.48,
		Z: field * 0.80,
	}
}

// pass returns the extra field of a metal pass, a raised cosine centred in
// each PassEvery window.
func (m *Mock) pass(elapsed time.Duration) float64 {
	if m.opts.PassEvery <= 0 {
		return 0
	}
	phase := elapsed%m.opts.PassEvery - m.opts.PassEvery/2
	half := m.opts.PassWidth / 2
	if phase < -half || phase > half {
		return 0
	}
	x := float64(phase) / float64(half)
	return m.opts.PassPeak * 0.5 * (1 + math.Cos(math.Pi*x))
}
