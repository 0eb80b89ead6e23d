package detector

import (
	"fmt"
	"strings"
)

// Mode selects the threshold and trigger constants of the engine.
type Mode int

const (
	MetalDetector Mode = iota
	StudFinder
	HandheldScanner
)

// modeParams holds the per-mode constants.
//   - base: threshold in µT before sensitivity scaling
//   - scaled: whether sensitivity lowers the threshold
//   - trigger: detection level that must be exceeded to enter the detected state
type modeParams struct {
	base    float64
	scaled  bool
	trigger float64
}

var modes = map[Mode]modeParams{
	MetalDetector:   {base: 60, scaled: true, trigger: 35},
	StudFinder:      {base: 55, scaled: true, trigger: 35},
	HandheldScanner: {base: 10, scaled: false, trigger: 20},
}

func (m Mode) params() modeParams {
	if p, ok := modes[m]; ok {
		return p
	}
	return modes[MetalDetector]
}

// Threshold returns the effective threshold in µT at the given sensitivity (0-100).
func (m Mode) Threshold(sensitivity float64) float64 {
	p := m.params()
	if !p.scaled {
		return p.base
	}
	return p.base * (1 - (ClampSensitivity(sensitivity)/100)*0.5)
}

// TriggerLevel returns the level that sets the detected state.
func (m Mode) TriggerLevel() float64 {
	return m.params().trigger
}

func (m Mode) String() string {
	switch m {
	case MetalDetector:
		return "metal"
	case StudFinder:
		return "stud"
	case HandheldScanner:
		return "handheld"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "metal", "stud" and "handheld" (case-insensitive), plus
// the long forms "metal_detector", "stud_finder" and "handheld_scanner".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "metal", "metal_detector", "metaldetector":
		return MetalDetector, nil
	case "stud", "stud_finder", "studfinder":
		return StudFinder, nil
	case "handheld", "handheld_scanner", "handheldscanner":
		return HandheldScanner, nil
	default:
		return MetalDetector, fmt.Errorf("unknown detector mode %q (want metal, stud or handheld)", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ClampSensitivity limits v to [0,100]. NaN maps to 0.
func ClampSensitivity(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
