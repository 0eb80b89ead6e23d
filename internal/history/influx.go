// Package history keeps a long-term record of finds and sensor restarts in
// InfluxDB, so past sweeps can be plotted on a map or a timeline.
package history

import (
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/relabs-tech/metal_detector/internal/scanner"
)

const (
	measurementFind    = "find"
	measurementRestart = "sensor_restart"
)

// Opts selects the InfluxDB target. An empty URL disables the sink.
type Opts struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type pointWriter interface {
	WritePoint(*write.Point)
}

// Sink implements scanner.Observer. Readings are not stored; the detection
// topic and /metrics already carry the live signal.
type Sink struct {
	scanner.BaseObserver

	w   pointWriter
	now func() time.Time
}

// Open connects a non-blocking write API. The returned func flushes pending
// points and closes the client.
func Open(opts Opts, log *slog.Logger) (*Sink, func()) {
	if log == nil {
		log = slog.Default()
	}
	clientOpts := influxdb2.DefaultOptions().
		SetBatchSize(20).
		SetFlushInterval(1000)
	client := influxdb2.NewClientWithOptions(opts.URL, opts.Token, clientOpts)
	writeAPI := client.WriteAPI(opts.Org, opts.Bucket)

	go func() {
		for err := range writeAPI.Errors() {
			log.Warn("history: influx write error", "err", err)
		}
	}()

	log.Info("history: writing finds to influx", "url", opts.URL, "bucket", opts.Bucket)
	closeFn := func() {
		writeAPI.Flush()
		client.Close()
	}
	return newSink(writeAPI), closeFn
}

func newSink(w pointWriter) *Sink {
	return &Sink{w: w, now: time.Now}
}

func (s *Sink) OnFind(f scanner.Find) {
	s.w.WritePoint(FindPoint(f))
}

func (s *Sink) OnRestart(session string) {
	s.w.WritePoint(influxdb2.NewPoint(measurementRestart,
		map[string]string{"session": session},
		map[string]interface{}{"count": int64(1)},
		s.now()))
}

// FindPoint converts a find into a point tagged by session and mode. The GPS
// position is added as fields when the find carries one.
func FindPoint(f scanner.Find) *write.Point {
	tags := map[string]string{
		"session": f.Session,
		"mode":    f.Mode.String(),
	}
	fields := map[string]interface{}{
		"level":       f.Level,
		"field_ut":    f.Field,
		"baseline_ut": f.Baseline,
	}
	if f.Fix != nil {
		fields["lat"] = f.Fix.Latitude
		fields["lon"] = f.Fix.Longitude
		fields["alt_m"] = f.Fix.Altitude
	}
	return influxdb2.NewPoint(measurementFind, tags, fields, f.Time)
}
