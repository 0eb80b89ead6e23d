// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package scanner owns a detection session: it subscribes to a magnetometer
// source, feeds every sample through the detector engine on a single
// timeline, forwards feedback requests and distributes readings.
package scanner

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/metal_detector/internal/detector"
	"github.com/relabs-tech/metal_detector/internal/feedback"
	"github.com/relabs-tech/metal_detector/internal/gps"
	"github.com/relabs-tech/metal_detector/internal/mag"
)

const (
	DefaultInterval     = time.Second / 60
	DefaultRestartDelay = 100 * time.Millisecond
)

// Find is emitted when the detected state goes from false to true.
type Find struct {
	Session  string        `json:"session"`
	Mode     detector.Mode `json:"mode"`
	Level    float64       `json:"level"`
	Field    float64       `json:"field_ut"`
	Baseline float64       `json:"baseline_ut"`
	Time     time.Time     `json:"time"`
	Fix      *gps.Fix      `json:"fix,omitempty"`
}

// Observer receives everything the scanner produces. Calls come from the
// sample goroutine and must return quickly.
type Observer interface {
	OnReading(detector.Reading)
	OnFind(Find)
	OnRestart(session string)
}

// BaseObserver implements Observer with no-ops so implementations can embed it.
type BaseObserver struct{}

func (BaseObserver) OnReading(detector.Reading) {}
func (BaseObserver) OnFind(Find)                {}
func (BaseObserver) OnRestart(string)           {}

// FixProvider supplies the position used to tag finds.
type FixProvider interface {
	LatestFix() (gps.Fix, bool)
}

// Options configures a Scanner. Source is required.
type Options struct {
	Source       mag.Source
	Engine       detector.Config
	Feedback     feedback.Device
	Observers    []Observer
	Fixes        FixProvider
	Interval     time.Duration
	RestartDelay time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// Scanner is safe for concurrent use. The engine itself is only touched with mu held.
type Scanner struct {
	src          mag.Source
	fb           feedback.Device
	observers    []Observer
	fixes        FixProvider
	interval     time.Duration
	restartDelay time.Duration
	now          func() time.Time
	log          *slog.Logger

	// lifecycle serializes Start, Stop and freeze restarts.
	lifecycle sync.Mutex

	mu                  sync.Mutex
	engine              *detector.Engine
	running             bool
	gen                 uint64
	session             string
	last                detector.Reading
	unavailableReported bool
	restarting          sync.WaitGroup
}

// New builds a stopped scanner.
func New(opts Options) *Scanner {
	s := &Scanner{
		src:          opts.Source,
		fb:           opts.Feedback,
		observers:    opts.Observers,
		fixes:        opts.Fixes,
		interval:     opts.Interval,
		restartDelay: opts.RestartDelay,
		now:          opts.Now,
		log:          opts.Logger,
		engine:       detector.New(opts.Engine),
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.restartDelay < 0 {
		s.restartDelay = 0
	} else if s.restartDelay == 0 {
		s.restartDelay = DefaultRestartDelay
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.fb == nil {
		s.fb = feedback.Log{L: s.log}
	}
	s.last = s.engine.Reading(s.now())
	return s
}

// Start resets the engine and subscribes to the source. Calling Start on a
// running scanner does nothing. When the source reports mag.ErrUnavailable
// the scanner stays stopped; the condition is logged once and returned on
// every call.
func (s *Scanner) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.src == nil {
		s.mu.Unlock()
		return s.unavailable(fmt.Errorf("scanner: no source configured: %w", mag.ErrUnavailable))
	}
	s.engine.Reset()
	s.gen++
	gen := s.gen
	s.session = uuid.NewString()
	s.running = true
	session, mode := s.session, s.engine.Mode()
	s.mu.Unlock()

	if err := s.src.Subscribe(s.interval, s.deliver(gen)); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if errors.Is(err, mag.ErrUnavailable) {
			return s.unavailable(err)
		}
		return fmt.Errorf("scanner: subscribe: %w", err)
	}

	s.log.Info("scanner: detection started", "session", session, "mode", mode, "interval", s.interval)
	return nil
}

func (s *Scanner) unavailable(err error) error {
	s.mu.Lock()
	first := !s.unavailableReported
	s.unavailableReported = true
	s.mu.Unlock()
	if first {
		s.log.Warn("scanner: magnetometer unavailable, detection not started", "err", err)
	}
	return err
}

// Stop unsubscribes, resets the engine and zeroes all live outputs.
// Calling Stop on a stopped scanner does nothing.
func (s *Scanner) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.gen++
	s.engine.Reset()
	s.last = s.engine.Reading(s.now())
	reading := s.last
	session := s.session
	s.mu.Unlock()

	err := s.src.Unsubscribe()
	s.fb.StopSound()
	for _, o := range s.observers {
		o.OnReading(reading)
	}

	s.log.Info("scanner: detection stopped", "session", session)
	if err != nil {
		return fmt.Errorf("scanner: unsubscribe: %w", err)
	}
	return nil
}

// Close stops the scanner and waits for any pending freeze restart.
func (s *Scanner) Close() error {
	err := s.Stop()
	s.restarting.Wait()
	return err
}

// Running reports whether a session is active.
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Snapshot returns the last published reading.
func (s *Scanner) Snapshot() detector.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SetMode switches the detector mode. A change restarts calibration and
// stops any feedback in progress.
func (s *Scanner) SetMode(m detector.Mode) {
	s.mu.Lock()
	a := s.engine.SetMode(m)
	s.last.Mode = s.engine.Mode()
	if a != 0 {
		s.last = s.engine.Reading(s.now())
		s.last.Session = s.session
	}
	reading := s.last
	s.mu.Unlock()

	if a != 0 {
		s.log.Info("scanner: mode changed, recalibrating", "mode", m)
		feedback.Dispatch(s.fb, a)
		for _, o := range s.observers {
			o.OnReading(reading)
		}
	}
}

// SetSensitivity sets the sensitivity, clamped to [0,100].
func (s *Scanner) SetSensitivity(v float64) {
	s.mu.Lock()
	s.engine.SetSensitivity(v)
	s.last.Sensitivity = s.engine.Sensitivity()
	s.last.Threshold = s.engine.Threshold()
	s.mu.Unlock()
}

func (s *Scanner) SetSoundEnabled(on bool) {
	s.mu.Lock()
	s.engine.SetSoundEnabled(on)
	s.mu.Unlock()
	if !on {
		s.fb.StopSound()
	}
}

func (s *Scanner) SetVibrationEnabled(on bool) {
	s.mu.Lock()
	s.engine.SetVibrationEnabled(on)
	s.mu.Unlock()
}

// deliver returns the sample callback for subscription generation gen.
// Samples from an older generation are ignored.
func (s *Scanner) deliver(gen uint64) func(mag.Sample) {
	var wasDetected bool
	return func(sample mag.Sample) {
		s.mu.Lock()
		if !s.running || s.gen != gen {
			s.mu.Unlock()
			return
		}
		now := s.now()
		res := s.engine.ProcessSample(sample, now)
		session := s.session

		if res.RestartRequested {
			s.restarting.Add(1)
			s.mu.Unlock()
			go s.restart(gen)
			for _, o := range s.observers {
				o.OnRestart(session)
			}
			return
		}
		if res.Dropped {
			s.mu.Unlock()
			return
		}

		reading := s.engine.Reading(now)
		reading.Session = session
		reading.Sampled = true
		s.last = reading
		s.mu.Unlock()

		feedback.Dispatch(s.fb, res.Actions)
		for _, o := range s.observers {
			o.OnReading(reading)
		}

		if res.Detected && !wasDetected {
			f := Find{
				Session:  session,
				Mode:     reading.Mode,
				Level:    reading.Level,
				Field:    reading.Field,
				Baseline: reading.Baseline,
				Time:     now,
			}
			if s.fixes != nil {
				if fix, ok := s.fixes.LatestFix(); ok {
					f.Fix = &fix
				}
			}
			s.log.Info("scanner: object detected", "session", session, "level", f.Level, "field", f.Field, "baseline", f.Baseline)
			for _, o := range s.observers {
				o.OnFind(f)
			}
		}
		wasDetected = res.Detected
	}
}

// restart tears the subscription down, waits restartDelay and subscribes
// again with a freshly reset engine.
func (s *Scanner) restart(gen uint64) {
	defer s.restarting.Done()

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.running || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	session := s.session
	s.mu.Unlock()

	s.log.Info("scanner: magnetometer stream frozen, restarting subscription", "session", session, "delay", s.restartDelay)
	if err := s.src.Unsubscribe(); err != nil {
		s.log.Warn("scanner: unsubscribe during restart failed", "err", err)
	}
	time.Sleep(s.restartDelay)

	s.mu.Lock()
	s.engine.Reset()
	next := s.gen
	s.mu.Unlock()

	if err := s.src.Subscribe(s.interval, s.deliver(next)); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.fb.StopSound()
		s.log.Error("scanner: resubscribe failed, detection stopped", "session", session, "err", err)
	}
}
