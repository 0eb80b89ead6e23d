package detector

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestModeThresholds(t *testing.T) {
	tests := []struct {
		mode        Mode
		sensitivity float64
		want        float64
		trigger     float64
	}{
		{MetalDetector, 0, 60, 35},
		{MetalDetector, 100, 30, 35},
		{MetalDetector, 50, 45, 35},
		{StudFinder, 0, 55, 35},
		{StudFinder, 100, 27.5, 35},
		{HandheldScanner, 0, 10, 20},
		{HandheldScanner, 100, 10, 20},
	}
	for _, tc := range tests {
		if got := tc.mode.Threshold(tc.sensitivity); got != tc.want {
			t.Errorf("%v at %v: expected threshold %v, got %v", tc.mode, tc.sensitivity, tc.want, got)
		}
		if got := tc.mode.TriggerLevel(); got != tc.trigger {
			t.Errorf("%v: expected trigger %v, got %v", tc.mode, tc.trigger, got)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"metal":            MetalDetector,
		"METAL_DETECTOR":   MetalDetector,
		"stud":             StudFinder,
		" stud_finder ":    StudFinder,
		"handheld":         HandheldScanner,
		"handheld_scanner": HandheldScanner,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		if err != nil {
			t.Errorf("ParseMode(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseMode(%q): expected %v, got %v", in, want, got)
		}
	}

	if _, err := ParseMode("compass"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestReadingJSON(t *testing.T) {
	r := Reading{Mode: StudFinder, Level: 42, Detected: true, Time: t0}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"mode":"stud"`) {
		t.Errorf("Expected textual mode in %s", b)
	}

	var back Reading
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Mode != StudFinder || !back.Detected || back.Level != 42 {
		t.Errorf("Unexpected decoded reading %+v", back)
	}
}

func TestCooldown(t *testing.T) {
	c := Cooldown{Interval: SoundCooldown}

	if !c.Ready(t0) {
		t.Fatal("Expected first use to be allowed")
	}
	if c.Ready(t0.Add(799 * time.Millisecond)) {
		t.Error("Expected second use within 0.8s to be suppressed")
	}
	if !c.Ready(t0.Add(800 * time.Millisecond)) {
		t.Error("Expected use after 0.8s to be allowed")
	}
	if c.Ready(t0.Add(1200 * time.Millisecond)) {
		t.Error("Expected cooldown to restart from the last use")
	}
}

func TestActionString(t *testing.T) {
	if got := (PlaySound | StopSound).String(); got != "sound|stop" {
		t.Errorf("Expected sound|stop, got %q", got)
	}
	if got := Action(0).String(); got != "none" {
		t.Errorf("Expected none, got %q", got)
	}
}
