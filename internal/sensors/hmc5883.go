// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/metal_detector/internal/mag"
)

const (
	regConfigA = 0x00
	regConfigB = 0x01
	regMode    = 0x02
	regDataX   = 0x03 // X, Z, Y; big endian
	regStatus  = 0x09
	regIDA     = 0x0A

	modeContinuous = 0x00
	rate75Hz       = 0x06 << 2

	// DefaultHMCAddr is the fixed 7-bit address of the HMC5883L.
	DefaultHMCAddr = 0x1E

	overflow = -4096
)

// gainLSBPerGauss maps the 3-bit gain code to the datasheet resolution.
var gainLSBPerGauss = [8]float64{1370, 1090, 820, 660, 440, 390, 330, 230}

// ErrOverflow is returned when any axis saturates the ADC.
var ErrOverflow = errors.New("hmc5883: axis overflow")

// HMCOpts configures the HMC5883L.
type HMCOpts struct {
	Bus        string // periph bus name, "" or "0" selects "1"
	Addr       uint16
	GainCode   uint8 // 0-7, 1 is the chip default (±1.3 Ga)
	AvgSamples int   // 1, 2, 4 or 8
}

// HMC5883 reads an HMC5883L over I2C. It embeds a Poller so it can be used
// directly as a mag.Source.
type HMC5883 struct {
	*mag.Poller

	bus  i2c.BusCloser
	dev  *i2c.Dev
	gain uint8
}

// NewHMC5883 opens the bus, checks the identification registers and puts the
// chip in continuous mode at 75 Hz. When the bus or the chip cannot be reached
// the error wraps mag.ErrUnavailable.
func NewHMC5883(opts HMCOpts, log *slog.Logger) (*HMC5883, error) {
	if opts.GainCode > 7 {
		return nil, fmt.Errorf("hmc5883: gain code %d out of range", opts.GainCode)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("hmc5883: periph host init: %v: %w", err, mag.ErrUnavailable)
	}

	name := opts.Bus
	if name == "" || name == "0" {
		name = "1"
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("hmc5883: i2c open failed on bus %s: %v: %w", name, err, mag.ErrUnavailable)
	}

	addr := opts.Addr
	if addr == 0 {
		addr = DefaultHMCAddr
	}
	h := &HMC5883{
		bus:  bus,
		dev:  &i2c.Dev{Bus: bus, Addr: addr},
		gain: opts.GainCode,
	}

	id, err := h.ID()
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("hmc5883: no device at 0x%X: %v: %w", addr, err, mag.ErrUnavailable)
	}
	if id != "H43" {
		bus.Close()
		return nil, fmt.Errorf("hmc5883: unexpected id %q at 0x%X: %w", id, addr, mag.ErrUnavailable)
	}

	if err := h.configure(opts.AvgSamples); err != nil {
		bus.Close()
		return nil, err
	}
	h.Poller = mag.NewPoller(h, log)
	return h, nil
}

func (h *HMC5883) configure(avg int) error {
	writes := [][2]byte{
		{regConfigA, averagingBits(avg) | rate75Hz},
		{regConfigB, h.gain << 5},
		{regMode, modeContinuous},
	}
	for _, w := range writes {
		if err := h.dev.Tx(w[:], nil); err != nil {
			return fmt.Errorf("hmc5883: write reg 0x%02X: %w", w[0], err)
		}
	}
	return nil
}

func averagingBits(n int) byte {
	switch {
	case n >= 8:
		return 3 << 5
	case n >= 4:
		return 2 << 5
	case n >= 2:
		return 1 << 5
	default:
		return 0
	}
}

// ID returns the three identification bytes, "H43" for a genuine part.
func (h *HMC5883) ID() (string, error) {
	id := make([]byte, 3)
	if err := h.dev.Tx([]byte{regIDA}, id); err != nil {
		return "", err
	}
	return string(id), nil
}

// Read returns one sample in µT.
func (h *HMC5883) Read() (mag.Sample, error) {
	raw := make([]byte, 6)
	if err := h.dev.Tx([]byte{regDataX}, raw); err != nil {
		return mag.Sample{}, fmt.Errorf("hmc5883: read data: %w", err)
	}
	return decodeHMC(raw, h.gain)
}

// Registers reads the configuration, mode and status registers.
func (h *HMC5883) Registers() ([]RegisterValue, error) {
	buf := make([]byte, regStatus-regConfigA+1)
	if err := h.dev.Tx([]byte{regConfigA}, buf); err != nil {
		return nil, fmt.Errorf("hmc5883: read registers: %w", err)
	}
	out := make([]RegisterValue, 0, len(hmcRegisterMap))
	for _, info := range hmcRegisterMap {
		addr, _ := strconv.ParseUint(info.Address, 0, 8)
		if int(addr) >= len(buf) {
			continue
		}
		out = append(out, RegisterValue{RegisterInfo: info, Value: buf[addr]})
	}
	return out, nil
}

// Close releases the bus. Unsubscribe first.
func (h *HMC5883) Close() error {
	if err := h.Unsubscribe(); err != nil {
		return err
	}
	return h.bus.Close()
}

// decodeHMC converts the six data bytes (X, Z, Y order) to µT.
func decodeHMC(raw []byte, gain uint8) (mag.Sample, error) {
	if len(raw) < 6 {
		return mag.Sample{}, fmt.Errorf("hmc5883: short data read (%d bytes)", len(raw))
	}
	x := int16(binary.BigEndian.Uint16(raw[0:2]))
	z := int16(binary.BigEndian.Uint16(raw[2:4]))
	y := int16(binary.BigEndian.Uint16(raw[4:6]))
	if x == overflow || y == overflow || z == overflow {
		return mag.Sample{}, ErrOverflow
	}

	// 1 Gauss = 100 µT
	lsb := gainLSBPerGauss[gain&7]
	return mag.Sample{
		X: float64(x) / lsb * 100,
		Y: float64(y) / lsb * 100,
		Z: float64(z) / lsb * 100,
	}, nil
}
