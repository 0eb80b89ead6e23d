package mag

import (
	"errors"
	"math"
	"time"
)

// ErrUnavailable is returned when no magnetometer can be reached.
// It is a capability condition, not a fault: callers report it and carry on.
var ErrUnavailable = errors.New("magnetometer unavailable")

// Sample represents a single magnetic field reading in µT.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the field strength |B| in µT.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// Valid reports whether every component is a finite number.
func (s Sample) Valid() bool {
	for _, v := range [3]float64{s.X, s.Y, s.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Payload is the JSON schema published on the raw magnetometer topic.
// mx,my,mz are in µT×10 (int16), norm is the magnitude in µT, time is RFC3339.
type Payload struct {
	Mx   int16   `json:"mx"`
	My   int16   `json:"my"`
	Mz   int16   `json:"mz"`
	Norm float64 `json:"norm"`
	Time string  `json:"time"`
}

// NewPayload converts a sample into its wire form.
func NewPayload(s Sample, t time.Time) Payload {
	return Payload{
		Mx:   toTenths(s.X),
		My:   toTenths(s.Y),
		Mz:   toTenths(s.Z),
		Norm: s.Magnitude(),
		Time: t.UTC().Format(time.RFC3339),
	}
}

// Sample converts the wire form back to µT.
func (p Payload) Sample() Sample {
	return Sample{
		X: float64(p.Mx) / 10.0,
		Y: float64(p.My) / 10.0,
		Z: float64(p.Mz) / 10.0,
	}
}

func toTenths(v float64) int16 {
	v = math.Round(v * 10)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
