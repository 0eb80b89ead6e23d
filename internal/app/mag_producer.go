// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/metal_detector/internal/config"
	"github.com/relabs-tech/metal_detector/internal/log"
	"github.com/relabs-tech/metal_detector/internal/mag"
	"github.com/relabs-tech/metal_detector/internal/sensors"
)

func hmcOpts(cfg *config.Config) sensors.HMCOpts {
	return sensors.HMCOpts{
		Bus:        cfg.HMCI2CBus,
		Addr:       cfg.HMCI2CAddr,
		GainCode:   cfg.HMCGainCode,
		AvgSamples: cfg.HMCAvgSamples,
	}
}

// RunMagProducer publishes raw HMC5883 samples on the raw magnetometer topic
// so a detector elsewhere can run with SENSOR_SOURCE=mqtt.
func RunMagProducer(cfg *config.Config) error {
	logger := log.With("component", "mag_producer")

	dev, err := sensors.NewHMC5883(hmcOpts(cfg), logger)
	if err != nil {
		return err
	}
	defer dev.Close()
	if id, err := dev.ID(); err == nil {
		logger.Info("hmc5883 ready", "id", id, "addr", fmt.Sprintf("0x%X", cfg.HMCI2CAddr))
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDMag, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	interval := time.Duration(cfg.SampleInterval) * time.Millisecond
	err = dev.Subscribe(interval, func(s mag.Sample) {
		if err := publishJSON(client, cfg.TopicMagRaw, false, mag.NewPayload(s, time.Now())); err != nil {
			logger.Warn("publish failed", "err", err)
		}
	})
	if err != nil {
		return err
	}
	logger.Info("producer started", "topic", cfg.TopicMagRaw, "interval", interval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	return nil
}

// RunRegisterDump prints the HMC5883 configuration and status registers.
func RunRegisterDump(cfg *config.Config, w io.Writer) error {
	dev, err := sensors.NewHMC5883(hmcOpts(cfg), log.With("component", "regs"))
	if err != nil {
		return err
	}
	defer dev.Close()

	regs, err := dev.Registers()
	if err != nil {
		return err
	}
	sensors.PrintRegisters(w, regs)
	return nil
}
