// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"io"
)

// RegisterInfo describes one device register.
type RegisterInfo struct {
	Address     string     `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// BitField describes a group of bits inside a register.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterValue is a register read back from the device.
type RegisterValue struct {
	RegisterInfo
	Value byte `json:"value"`
}

// hmcRegisterMap covers the HMC5883L configuration and status registers.
var hmcRegisterMap = []RegisterInfo{
	{Address: "0x00", Name: "CONFIG_A", Description: "Configuration Register A", Access: "RW", Default: "0x10",
		BitFields: []BitField{
			{Bits: "6:5", Name: "MA", Description: "Samples averaged per output", Values: "0=1, 1=2, 2=4, 3=8"},
			{Bits: "4:2", Name: "DO", Description: "Output data rate", Values: "0=0.75Hz, 1=1.5Hz, 2=3Hz, 3=7.5Hz, 4=15Hz, 5=30Hz, 6=75Hz"},
			{Bits: "1:0", Name: "MS", Description: "Measurement mode", Values: "0=Normal, 1=Positive bias, 2=Negative bias"},
		}},
	{Address: "0x01", Name: "CONFIG_B", Description: "Configuration Register B", Access: "RW", Default: "0x20",
		BitFields: []BitField{
			{Bits: "7:5", Name: "GN", Description: "Gain", Values: "0=±0.88Ga, 1=±1.3Ga, 2=±1.9Ga, 3=±2.5Ga, 4=±4.0Ga, 5=±4.7Ga, 6=±5.6Ga, 7=±8.1Ga"},
		}},
	{Address: "0x02", Name: "MODE", Description: "Mode Register", Access: "RW", Default: "0x01",
		BitFields: []BitField{
			{Bits: "1:0", Name: "MD", Description: "Operating mode", Values: "0=Continuous, 1=Single, 2=Idle, 3=Idle"},
		}},
	{Address: "0x09", Name: "STATUS", Description: "Status Register", Access: "R", Default: "0x00",
		BitFields: []BitField{
			{Bits: "1", Name: "LOCK", Description: "Data output registers locked", Values: "0=Unlocked, 1=Locked"},
			{Bits: "0", Name: "RDY", Description: "New data ready", Values: "0=Not ready, 1=Ready"},
		}},
}

// PrintRegisters writes a human readable register dump to w.
func PrintRegisters(w io.Writer, regs []RegisterValue) {
	for _, r := range regs {
		fmt.Fprintf(w, "%s %-9s = 0x%02X  %s\n", r.Address, r.Name, r.Value, r.Description)
		for _, b := range r.BitFields {
			fmt.Fprintf(w, "      [%s] %-4s %s (%s)\n", b.Bits, b.Name, b.Description, b.Values)
		}
	}
}
