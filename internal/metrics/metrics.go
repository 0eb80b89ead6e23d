// Package metrics exposes detector state as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/metal_detector/internal/detector"
	"github.com/relabs-tech/metal_detector/internal/feedback"
	"github.com/relabs-tech/metal_detector/internal/scanner"
)

const namespace = "metal_detector"

// Metrics implements scanner.Observer.
type Metrics struct {
	field      prometheus.Gauge
	baseline   prometheus.Gauge
	threshold  prometheus.Gauge
	level      prometheus.Gauge
	detected   prometheus.Gauge
	calibrated prometheus.Gauge
	samples    prometheus.Counter
	finds      *prometheus.CounterVec
	restarts   prometheus.Counter
	feedback   *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		field: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "field_microtesla",
			Help: "Magnitude of the last accepted magnetometer sample.",
		}),
		baseline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "baseline_microtesla",
			Help: "Current ambient baseline.",
		}),
		threshold: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "threshold_microtesla",
			Help: "Effective detection threshold for the current mode and sensitivity.",
		}),
		level: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "detection_level",
			Help: "Detection level from 0 to 100.",
		}),
		detected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "detected",
			Help: "1 while an object is detected.",
		}),
		calibrated: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "calibrated",
			Help: "1 once the baseline has been calibrated.",
		}),
		samples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_total",
			Help: "Samples that reached calibration or detection.",
		}),
		finds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "finds_total",
			Help: "Rising edges of the detected state.",
		}, []string{"mode"}),
		restarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sensor_restarts_total",
			Help: "Sensor subscriptions restarted after a frozen stream.",
		}),
		feedback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "feedback_total",
			Help: "Feedback requests forwarded to the output device.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) OnReading(r detector.Reading) {
	m.field.Set(r.Field)
	m.baseline.Set(r.Baseline)
	m.threshold.Set(r.Threshold)
	m.level.Set(r.Level)
	m.detected.Set(boolGauge(r.Detected))
	m.calibrated.Set(boolGauge(r.Calibrated))
	if r.Sampled {
		m.samples.Inc()
	}
}

func (m *Metrics) OnFind(f scanner.Find) {
	m.finds.WithLabelValues(f.Mode.String()).Inc()
}

func (m *Metrics) OnRestart(string) {
	m.restarts.Inc()
}

// Feedback wraps d so every request is counted.
func (m *Metrics) Feedback(d feedback.Device) feedback.Device {
	return countingDevice{d: d, c: m.feedback}
}

type countingDevice struct {
	d feedback.Device
	c *prometheus.CounterVec
}

func (c countingDevice) PlaySound() {
	c.c.WithLabelValues("sound").Inc()
	c.d.PlaySound()
}

func (c countingDevice) TriggerHaptic() {
	c.c.WithLabelValues("haptic").Inc()
	c.d.TriggerHaptic()
}

func (c countingDevice) StopSound() {
	c.c.WithLabelValues("stop").Inc()
	c.d.StopSound()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
