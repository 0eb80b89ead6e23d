package feedback

import (
	"reflect"
	"testing"

	"github.com/relabs-tech/metal_detector/internal/detector"
)

type recorder struct {
	calls []string
}

func (r *recorder) PlaySound()     { r.calls = append(r.calls, "sound") }
func (r *recorder) TriggerHaptic() { r.calls = append(r.calls, "haptic") }
func (r *recorder) StopSound()     { r.calls = append(r.calls, "stop") }

func TestDispatch(t *testing.T) {
	tests := []struct {
		name   string
		action detector.Action
		want   []string
	}{
		{"none", 0, nil},
		{"sound", detector.PlaySound, []string{"sound"}},
		{"both", detector.PlaySound | detector.TriggerHaptic, []string{"sound", "haptic"}},
		{"stop first", detector.StopSound | detector.PlaySound, []string{"stop", "sound"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &recorder{}
			Dispatch(r, tc.action)
			if !reflect.DeepEqual(r.calls, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, r.calls)
			}
		})
	}
}

func TestDispatch_NilDevice(t *testing.T) {
	Dispatch(nil, detector.PlaySound)
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, b}
	m.PlaySound()
	m.TriggerHaptic()
	m.StopSound()

	want := []string{"sound", "haptic", "stop"}
	if !reflect.DeepEqual(a.calls, want) || !reflect.DeepEqual(b.calls, want) {
		t.Errorf("Expected both devices to see %v, got %v and %v", want, a.calls, b.calls)
	}
}

func TestUnconfiguredPulsePin(t *testing.T) {
	p := &pulsePin{}
	if err := p.pulse(); err != nil {
		t.Errorf("Expected no-op pulse, got %v", err)
	}
	if err := p.off(); err != nil {
		t.Errorf("Expected no-op off, got %v", err)
	}
}
