package detector

import (
	"math"
	"testing"
	"time"

	"github.com/relabs-tech/metal_detector/internal/mag"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// clock hands out arrival times 5ms apart (200 Hz), well inside the freeze window
// for short constant runs.
type clock struct {
	t    time.Time
	step time.Duration
}

func newClock() *clock { return &clock{t: t0, step: 5 * time.Millisecond} }

func (c *clock) next() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func field(m float64) mag.Sample { return mag.Sample{X: 0, Y: 0, Z: m} }

func calibrated(t *testing.T, cfg Config, baseline float64) (*Engine, *clock) {
	t.Helper()
	e := New(cfg)
	clk := newClock()
	for i := 0; i < CalibrationSamples; i++ {
		e.ProcessSample(field(baseline), clk.next())
	}
	if !e.Calibrated() {
		t.Fatalf("engine not calibrated after %d samples", CalibrationSamples)
	}
	return e, clk
}

func sensitivityZero() Config {
	cfg := DefaultConfig()
	cfg.Sensitivity = 0
	return cfg
}

func TestMagnitude(t *testing.T) {
	s := mag.Sample{X: 3, Y: 4, Z: 12}
	if got := s.Magnitude(); got != 13 {
		t.Errorf("Expected magnitude 13, got %v", got)
	}
}

func TestCalibration_ConstantRun(t *testing.T) {
	e := New(DefaultConfig())
	clk := newClock()

	for i := 1; i <= CalibrationSamples; i++ {
		r := e.ProcessSample(field(48), clk.next())
		if r.Level != 0 || r.Detected {
			t.Fatalf("sample %d: expected no detection during calibration, got level=%v detected=%v", i, r.Level, r.Detected)
		}
		if i < CalibrationSamples && r.Calibrated {
			t.Fatalf("sample %d: calibrated too early", i)
		}
		if i == CalibrationSamples {
			if !r.Calibrated {
				t.Fatalf("sample %d: expected calibration to complete", i)
			}
			if r.Baseline != 48 {
				t.Errorf("Expected baseline=48, got %v", r.Baseline)
			}
		}
	}
}

func TestCalibration_Mean(t *testing.T) {
	e := New(DefaultConfig())
	clk := newClock()
	for i := 0; i < CalibrationSamples; i++ {
		m := 40.0
		if i%2 == 1 {
			m = 50.0
		}
		e.ProcessSample(field(m), clk.next())
	}
	if got := e.Baseline(); math.Abs(got-45) > 1e-9 {
		t.Errorf("Expected baseline=45, got %v", got)
	}
}

func TestBaseline_DriftsWhileIdle(t *testing.T) {
	e, clk := calibrated(t, DefaultConfig(), 50)

	r := e.ProcessSample(field(52), clk.next())
	want := BaselineAlpha*52 + (1-BaselineAlpha)*50
	if math.Abs(r.Baseline-want) > 1e-9 {
		t.Errorf("Expected baseline=%v, got %v", want, r.Baseline)
	}
	if r.Level != 0 {
		t.Errorf("Expected level 0 below the noise floor, got %v", r.Level)
	}
}

func TestBaseline_FrozenWhileDetected(t *testing.T) {
	e, clk := calibrated(t, sensitivityZero(), 50)

	r := e.ProcessSample(field(250), clk.next())
	if !r.Detected {
		t.Fatalf("Expected detection for a 200µT deviation, got level=%v", r.Level)
	}

	prev := r.Baseline
	for _, m := range []float64{240, 230, 180, 150, 120, 95, 110, 130} {
		r = e.ProcessSample(field(m), clk.next())
		if !r.Detected {
			t.Fatalf("field %v: detection dropped unexpectedly (level=%v)", m, r.Level)
		}
		if r.Baseline != prev {
			t.Fatalf("field %v: baseline moved during detection: %v -> %v", m, prev, r.Baseline)
		}
	}
}

func TestThreshold_MetalSensitivityZero(t *testing.T) {
	const b = 50.0

	t.Run("just above threshold does not trigger", func(t *testing.T) {
		e, clk := calibrated(t, sensitivityZero(), b)
		r := e.ProcessSample(field(b+61), clk.next())
		if r.Detected {
			t.Errorf("Expected no detection at b+61, got level=%v", r.Level)
		}
		if r.Level > MetalDetector.TriggerLevel() {
			t.Errorf("Expected level below trigger, got %v", r.Level)
		}
	})

	t.Run("twice the threshold triggers", func(t *testing.T) {
		e, clk := calibrated(t, sensitivityZero(), b)
		r := e.ProcessSample(field(b+120), clk.next())
		if !r.Detected {
			t.Errorf("Expected detection at b+120, got level=%v", r.Level)
		}
		if r.Level <= 35 || r.Level >= 100 {
			t.Errorf("Expected level in (35,100), got %v", r.Level)
		}
	})

	t.Run("far past threshold clamps to 100", func(t *testing.T) {
		e, clk := calibrated(t, sensitivityZero(), b)
		r := e.ProcessSample(field(b+200), clk.next())
		if r.Level != 100 {
			t.Errorf("Expected level=100, got %v", r.Level)
		}
		if !r.Detected {
			t.Error("Expected detection")
		}
	})
}

func TestHysteresis_HoldAndClear(t *testing.T) {
	e, clk := calibrated(t, sensitivityZero(), 50)
	th := e.Threshold()
	if th != 60 {
		t.Fatalf("Expected threshold 60 at sensitivity 0, got %v", th)
	}

	r := e.ProcessSample(field(250), clk.next())
	if !r.Detected {
		t.Fatal("Expected detection")
	}
	base := r.Baseline

	// Between 0.4x and 1x the threshold the state is held.
	for _, frac := range []float64{0.95, 0.75, 0.5, 0.45, 0.41} {
		r = e.ProcessSample(field(base+frac*th), clk.next())
		if !r.Detected {
			t.Fatalf("diff=%.2fx threshold: expected detection to hold", frac)
		}
		if r.Actions.Has(StopSound) {
			t.Fatalf("diff=%.2fx threshold: unexpected stop request", frac)
		}
	}

	r = e.ProcessSample(field(base+0.3*th), clk.next())
	if r.Detected {
		t.Fatal("Expected detection to clear below 0.4x threshold")
	}
	if !r.Actions.Has(StopSound) {
		t.Errorf("Expected StopSound on clear, got %v", r.Actions)
	}

	// Once cleared, the baseline adapts again.
	next := e.ProcessSample(field(base+0.3*th), clk.next())
	if next.Baseline == r.Baseline {
		t.Error("Expected baseline to drift again after the detection cleared")
	}
}

func TestHysteresis_NoReentryWithoutTrigger(t *testing.T) {
	e, clk := calibrated(t, sensitivityZero(), 50)

	// Level between hold (10) and trigger (35) never enters the detected state.
	for i := 0; i < 5; i++ {
		base := e.Baseline()
		r := e.ProcessSample(field(base+e.Threshold()*1.5), clk.next())
		if r.Detected {
			t.Fatalf("step %d: unexpected detection at level %v", i, r.Level)
		}
	}
}

func TestHandheldScanner(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = HandheldScanner
	cfg.Sensitivity = 100

	e, clk := calibrated(t, cfg, 50)
	if th := e.Threshold(); th != 10 {
		t.Fatalf("Expected fixed handheld threshold 10, got %v", th)
	}

	r := e.ProcessSample(field(70), clk.next())
	if !r.Detected {
		t.Errorf("Expected handheld detection at +20µT, got level=%v", r.Level)
	}
}

func TestNoiseFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = HandheldScanner
	e, clk := calibrated(t, cfg, 50)

	r := e.ProcessSample(field(52.5), clk.next())
	if r.Level != 0 || r.Detected {
		t.Errorf("Expected nothing under the noise floor, got level=%v detected=%v", r.Level, r.Detected)
	}
}

func TestSensitivity_Clamped(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{150, 100},
		{-10, 0},
		{42, 42},
		{math.NaN(), 0},
	}
	for _, tc := range tests {
		e := New(DefaultConfig())
		e.SetSensitivity(tc.in)
		if got := e.Sensitivity(); got != tc.want {
			t.Errorf("SetSensitivity(%v): expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

func TestSensitivity_ClampedBehavesIdentically(t *testing.T) {
	seq := []float64{50, 70, 90, 120, 140, 80, 60, 51, 49}

	run := func(sens float64) []Result {
		cfg := DefaultConfig()
		cfg.Sensitivity = sens
		e, clk := calibrated(t, cfg, 50)
		var out []Result
		for _, m := range seq {
			out = append(out, e.ProcessSample(field(m), clk.next()))
		}
		return out
	}

	pairs := [][2]float64{{150, 100}, {-10, 0}}
	for _, p := range pairs {
		a, b := run(p[0]), run(p[1])
		for i := range a {
			if a[i] != b[i] {
				t.Errorf("sensitivity %v vs %v, step %d: %+v != %+v", p[0], p[1], i, a[i], b[i])
			}
		}
	}
}

func TestFeedback_Cooldowns(t *testing.T) {
	e, _ := calibrated(t, sensitivityZero(), 50)
	start := t0.Add(time.Second)

	steps := []struct {
		after time.Duration
		want  Action
	}{
		{0, PlaySound | TriggerHaptic},
		{100 * time.Millisecond, 0},
		{500 * time.Millisecond, TriggerHaptic},
		{700 * time.Millisecond, 0},
		{800 * time.Millisecond, PlaySound},
		{1000 * time.Millisecond, TriggerHaptic},
		{1600 * time.Millisecond, PlaySound | TriggerHaptic},
	}
	for i, s := range steps {
		// Alternate the field slightly so the freeze gate never fires.
		m := 250.0 + float64(i%2)
		r := e.ProcessSample(field(m), start.Add(s.after))
		if !r.Detected {
			t.Fatalf("step %d: expected detection", i)
		}
		if r.Actions != s.want {
			t.Errorf("step %d (+%v): expected %v, got %v", i, s.after, s.want, r.Actions)
		}
	}
}

func TestFeedback_Gated(t *testing.T) {
	cfg := sensitivityZero()
	cfg.SoundEnabled = false
	e, clk := calibrated(t, cfg, 50)

	r := e.ProcessSample(field(250), clk.next())
	if !r.Detected {
		t.Fatal("Expected detection with sound disabled")
	}
	if r.Actions.Has(PlaySound) {
		t.Error("Expected no sound request while sound is disabled")
	}
	if !r.Actions.Has(TriggerHaptic) {
		t.Error("Expected haptic request while vibration is enabled")
	}

	e.SetVibrationEnabled(false)
	r = e.ProcessSample(field(251), clk.next().Add(time.Second))
	if r.Actions != 0 {
		t.Errorf("Expected no feedback with both outputs disabled, got %v", r.Actions)
	}
}

func TestFreeze_SingleRestartRequest(t *testing.T) {
	e := New(DefaultConfig())
	clk := &clock{t: t0, step: 20 * time.Millisecond}

	requests, dropped := 0, 0
	for i := 0; i < 150; i++ {
		r := e.ProcessSample(field(47.3), clk.next())
		if r.RestartRequested {
			requests++
		}
		if r.Dropped {
			dropped++
		}
	}
	if requests != 1 {
		t.Errorf("Expected exactly 1 restart request, got %d", requests)
	}
	if dropped == 0 {
		t.Error("Expected stale samples to be dropped")
	}
	if e.Calibrated() {
		t.Error("Expected stale samples to stay out of calibration")
	}

	// A restart clears the freeze state.
	e.Reset()
	for i := 0; i < 60; i++ {
		if r := e.ProcessSample(field(47.3), clk.next()); r.RestartRequested {
			requests++
		}
	}
	if requests != 2 {
		t.Errorf("Expected a new request after reset, got %d total", requests)
	}
}

func TestFreeze_ShortFlatRunIsFine(t *testing.T) {
	e := New(DefaultConfig())
	clk := &clock{t: t0, step: 10 * time.Millisecond}
	for i := 0; i < 80; i++ {
		r := e.ProcessSample(field(47.3), clk.next())
		if r.Dropped {
			t.Fatalf("sample %d dropped within the freeze window", i)
		}
	}
}

func TestFreeze_RecoversWhenFieldMoves(t *testing.T) {
	e := New(DefaultConfig())
	clk := &clock{t: t0, step: 100 * time.Millisecond}
	for i := 0; i < 12; i++ {
		e.ProcessSample(field(47.3), clk.next())
	}
	r := e.ProcessSample(field(47.5), clk.next())
	if r.Dropped {
		t.Error("Expected a changed reading to pass the freeze gate")
	}
}

func TestInvalidSampleDropped(t *testing.T) {
	e, clk := calibrated(t, DefaultConfig(), 50)
	before := e.Baseline()
	r := e.ProcessSample(mag.Sample{X: math.NaN()}, clk.next())
	if !r.Dropped {
		t.Error("Expected NaN sample to be dropped")
	}
	if e.Baseline() != before {
		t.Error("Expected baseline untouched by an invalid sample")
	}
}

func TestSetMode_Resets(t *testing.T) {
	e, clk := calibrated(t, sensitivityZero(), 50)
	e.ProcessSample(field(250), clk.next())
	if !e.Detected() {
		t.Fatal("Expected detection before mode switch")
	}

	if a := e.SetMode(StudFinder); a != StopSound {
		t.Errorf("Expected StopSound on mode switch, got %v", a)
	}
	if e.Calibrated() || e.Detected() || e.Level() != 0 || e.Baseline() != 0 {
		t.Errorf("Expected full reset, got calibrated=%v detected=%v level=%v baseline=%v",
			e.Calibrated(), e.Detected(), e.Level(), e.Baseline())
	}
	if a := e.SetMode(StudFinder); a != 0 {
		t.Errorf("Expected no action when mode is unchanged, got %v", a)
	}
}

func TestReset_KeepsCooldowns(t *testing.T) {
	e, clk := calibrated(t, sensitivityZero(), 50)
	now := clk.next()
	r := e.ProcessSample(field(250), now)
	if !r.Actions.Has(PlaySound) {
		t.Fatal("Expected sound request on first detection")
	}

	e.Reset()
	if !e.sound.last.Equal(now) {
		t.Error("Expected sound cooldown to survive reset")
	}
}
