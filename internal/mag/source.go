// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mag

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrSubscribed is returned by Subscribe when a subscription is already active.
var ErrSubscribed = errors.New("magnetometer source already subscribed")

// Source is a push-based sample stream. Samples are delivered to fn one at a
// time from a single goroutine; fn must not call back into the source.
type Source interface {
	Subscribe(interval time.Duration, fn func(Sample)) error
	Unsubscribe() error
}

// Reader is anything that can be polled for one sample.
type Reader interface {
	Read() (Sample, error)
}

// Poller turns a Reader into a Source by reading it on a ticker.
// Read errors are logged and the tick is skipped.
type Poller struct {
	r   Reader
	log *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewPoller wraps r. A nil logger falls back to slog.Default.
func NewPoller(r Reader, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{r: r, log: log}
}

// Subscribe starts polling every interval.
func (p *Poller) Subscribe(interval time.Duration, fn func(Sample)) error {
	if interval <= 0 {
		interval = time.Second / 60
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return ErrSubscribed
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go p.loop(interval, fn, p.stop, p.done)
	return nil
}

// Unsubscribe stops polling and waits for the loop to exit.
// It is a no-op when not subscribed.
func (p *Poller) Unsubscribe() error {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (p *Poller) loop(interval time.Duration, fn func(Sample), stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s, err := p.r.Read()
			if err != nil {
				p.log.Warn("mag: read error", "err", err)
				continue
			}
			fn(s)
		}
	}
}
