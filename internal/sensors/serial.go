package sensors

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/metal_detector/internal/mag"
)

// SerialOpts configures a magnetometer streaming "x,y,z" lines in µT over a
// serial port, e.g. a microcontroller bridge.
type SerialOpts struct {
	Port     string
	BaudRate uint
}

// Serial is a mag.Source backed by a line oriented serial stream. The port is
// opened on Subscribe and closed on Unsubscribe. The device sets the pace; the
// subscribe interval is ignored.
type Serial struct {
	opts SerialOpts
	log  *slog.Logger
	open func(serial.OpenOptions) (io.ReadWriteCloser, error)

	mu   sync.Mutex
	port io.ReadWriteCloser
	done chan struct{}
}

// NewSerial returns an unopened serial source.
func NewSerial(opts SerialOpts, log *slog.Logger) *Serial {
	if opts.BaudRate == 0 {
		opts.BaudRate = 115200
	}
	if log == nil {
		log = slog.Default()
	}
	return &Serial{opts: opts, log: log, open: serial.Open}
}

func (s *Serial) Subscribe(_ time.Duration, fn func(mag.Sample)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return mag.ErrSubscribed
	}

	port, err := s.open(serial.OpenOptions{
		PortName:        s.opts.Port,
		BaudRate:        s.opts.BaudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("serial mag: open %s: %v: %w", s.opts.Port, err, mag.ErrUnavailable)
		}
		return fmt.Errorf("serial mag: open %s: %w", s.opts.Port, err)
	}
	s.port = port
	s.done = make(chan struct{})
	go s.loop(port, fn, s.done)
	return nil
}

// Unsubscribe closes the port and waits for the reader to exit.
func (s *Serial) Unsubscribe() error {
	s.mu.Lock()
	port, done := s.port, s.done
	s.port, s.done = nil, nil
	s.mu.Unlock()

	if port == nil {
		return nil
	}
	err := port.Close()
	<-done
	return err
}

func (s *Serial) loop(r io.Reader, fn func(mag.Sample), done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sample, err := ParseLine(line)
		if err != nil {
			s.log.Debug("serial mag: skipping line", "line", line, "err", err)
			continue
		}
		fn(sample)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, fs.ErrClosed) {
		s.log.Warn("serial mag: read error", "port", s.opts.Port, "err", err)
	}
}

// ParseLine parses "x,y,z" (µT). Whitespace around the fields is ignored.
func ParseLine(line string) (mag.Sample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return mag.Sample{}, fmt.Errorf("expected 3 fields, got %d", len(parts))
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return mag.Sample{}, fmt.Errorf("field %d: %w", i, err)
		}
		v[i] = f
	}
	return mag.Sample{X: v[0], Y: v[1], Z: v[2]}, nil
}
