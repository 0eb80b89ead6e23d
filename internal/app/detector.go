// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/relabs-tech/metal_detector/internal/config"
	"github.com/relabs-tech/metal_detector/internal/detector"
	"github.com/relabs-tech/metal_detector/internal/feedback"
	"github.com/relabs-tech/metal_detector/internal/gps"
	"github.com/relabs-tech/metal_detector/internal/history"
	"github.com/relabs-tech/metal_detector/internal/log"
	"github.com/relabs-tech/metal_detector/internal/mag"
	"github.com/relabs-tech/metal_detector/internal/metrics"
	"github.com/relabs-tech/metal_detector/internal/scanner"
	"github.com/relabs-tech/metal_detector/internal/sensors"
)

// DetectorOptions are the command line switches of the detector.
type DetectorOptions struct {
	// Demo forces the mock source and tolerates a missing broker.
	Demo bool
	// Stuck makes the demo source freeze after a few seconds.
	Stuck bool
}

// RunDetector runs a detection session until SIGINT/SIGTERM.
func RunDetector(cfg *config.Config, opts DetectorOptions) error {
	logger := log.With("component", "detector")

	var client mqtt.Client
	c, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDetector, logger)
	switch {
	case err == nil:
		client = c
		defer client.Disconnect(250)
	case opts.Demo:
		logger.Warn("running without MQTT", "err", err)
	default:
		return err
	}

	src, closeSrc, err := newSource(cfg, opts, client, logger)
	if err != nil && !errors.Is(err, mag.ErrUnavailable) {
		return err
	}
	if err != nil {
		// The scanner reports the missing sensor on every start attempt.
		logger.Warn("magnetometer unavailable", "source", cfg.SensorSource, "err", err)
		src = unavailableSource{err: err}
	}
	defer closeSrc()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	fb, closeFb, err := newFeedback(cfg, client, logger)
	if err != nil {
		return err
	}
	defer closeFb()

	observers := []scanner.Observer{m}
	if client != nil {
		observers = append(observers, &mqttPublisher{
			client:         client,
			topicDetection: cfg.TopicDetection,
			topicFinds:     cfg.TopicFinds,
			log:            logger,
		})
	}

	if cfg.InfluxURL != "" {
		sink, closeSink := history.Open(history.Opts{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, logger)
		defer closeSink()
		observers = append(observers, sink)
	}

	fixes := &gps.Latest{}
	sc := scanner.New(scanner.Options{
		Source: src,
		Engine: detector.Config{
			Mode:             cfg.DetectorMode,
			Sensitivity:      cfg.DetectorSensitivity,
			SoundEnabled:     cfg.SoundEnabled,
			VibrationEnabled: cfg.VibrationEnabled,
		},
		Feedback:  m.Feedback(fb),
		Observers: observers,
		Fixes:     fixes,
		Interval:  time.Duration(cfg.SampleInterval) * time.Millisecond,
		Logger:    log.With("component", "scanner"),
	})
	defer sc.Close()

	if client != nil {
		if err := subscribeJSON(client, cfg.TopicGPS, logger, fixes.Update); err != nil {
			logger.Warn("gps tagging disabled", "err", err)
		}
		if err := subscribeJSON(client, cfg.TopicControl, logger, func(msg ControlMessage) {
			if err := applyControl(sc, msg); err != nil {
				logger.Warn("control message rejected", "err", err)
			}
		}); err != nil {
			return err
		}
	}

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: detectorMux(reg, sc)}
	go func() {
		logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	if err := sc.Start(); err != nil && !errors.Is(err, mag.ErrUnavailable) {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	return nil
}

// detectorMux serves metrics and the live snapshot of the local scanner.
func detectorMux(reg *prometheus.Registry, sc *scanner.Scanner) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/api/detection", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sc.Snapshot())
	})
	return mux
}

func newSource(cfg *config.Config, opts DetectorOptions, client mqtt.Client, logger *slog.Logger) (mag.Source, func(), error) {
	nop := func() {}
	kind := cfg.SensorSource
	if opts.Demo {
		kind = "mock"
	}

	switch kind {
	case "mock":
		mo := sensors.MockOpts{PassEvery: 6 * time.Second}
		if opts.Stuck {
			mo.StuckAfter = 4 * time.Second
		}
		return sensors.NewMock(mo, logger), nop, nil
	case "hmc5883":
		h, err := sensors.NewHMC5883(sensors.HMCOpts{
			Bus:        cfg.HMCI2CBus,
			Addr:       cfg.HMCI2CAddr,
			GainCode:   cfg.HMCGainCode,
			AvgSamples: cfg.HMCAvgSamples,
		}, logger)
		if err != nil {
			return nil, nop, err
		}
		return h, func() { h.Close() }, nil
	case "serial":
		return sensors.NewSerial(sensors.SerialOpts{Port: cfg.SensorSerialPort, BaudRate: cfg.SensorBaudRate}, logger), nop, nil
	case "mqtt":
		if client == nil {
			return nil, nop, fmt.Errorf("mqtt source needs a broker connection: %w", mag.ErrUnavailable)
		}
		return sensors.NewMQTTSource(client, cfg.TopicMagRaw, logger), nop, nil
	default:
		return nil, nop, fmt.Errorf("unknown sensor source %q", kind)
	}
}

func newFeedback(cfg *config.Config, client mqtt.Client, logger *slog.Logger) (feedback.Device, func(), error) {
	nop := func() {}
	logDev := feedback.Log{L: logger}

	switch cfg.FeedbackDevice {
	case "gpio":
		g, err := feedback.NewGPIO(feedback.GPIOOpts{
			BuzzerPin:    cfg.BuzzerPin,
			VibrationPin: cfg.VibrationPin,
		}, logger)
		if err != nil {
			return nil, nop, err
		}
		return feedback.Multi{g, logDev}, func() { g.Close() }, nil
	case "mqtt":
		if client == nil {
			logger.Warn("feedback over mqtt needs a broker, falling back to log")
			return logDev, nop, nil
		}
		return feedback.Multi{feedback.MQTT{Client: client, Topic: cfg.TopicFeedback, Log: logger}, logDev}, nop, nil
	default:
		return logDev, nop, nil
	}
}

// unavailableSource stands in for a sensor that could not be opened.
type unavailableSource struct{ err error }

func (u unavailableSource) Subscribe(time.Duration, func(mag.Sample)) error { return u.err }
func (u unavailableSource) Unsubscribe() error                              { return nil }
