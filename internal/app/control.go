package app

import (
	"fmt"

	"github.com/relabs-tech/metal_detector/internal/detector"
)

// ControlMessage is the JSON schema accepted on the control topic.
// Absent fields leave the corresponding setting untouched.
type ControlMessage struct {
	Mode        *detector.Mode `json:"mode,omitempty"`
	Sensitivity *float64       `json:"sensitivity,omitempty"`
	Sound       *bool          `json:"sound,omitempty"`
	Vibration   *bool          `json:"vibration,omitempty"`
	Action      string         `json:"action,omitempty"` // "start" or "stop"
}

// Controller is the part of the scanner the control topic drives.
type Controller interface {
	Start() error
	Stop() error
	SetMode(detector.Mode)
	SetSensitivity(float64)
	SetSoundEnabled(bool)
	SetVibrationEnabled(bool)
}

// applyControl applies settings first and the start/stop action last, so a
// single message can reconfigure and start a session.
func applyControl(c Controller, msg ControlMessage) error {
	if msg.Mode != nil {
		c.SetMode(*msg.Mode)
	}
	if msg.Sensitivity != nil {
		c.SetSensitivity(*msg.Sensitivity)
	}
	if msg.Sound != nil {
		c.SetSoundEnabled(*msg.Sound)
	}
	if msg.Vibration != nil {
		c.SetVibrationEnabled(*msg.Vibration)
	}

	switch msg.Action {
	case "":
		return nil
	case "start":
		return c.Start()
	case "stop":
		return c.Stop()
	default:
		return fmt.Errorf("unknown control action %q", msg.Action)
	}
}
