// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/metal_detector/internal/app"
	"github.com/relabs-tech/metal_detector/internal/config"
	"github.com/relabs-tech/metal_detector/internal/detector"
	"github.com/relabs-tech/metal_detector/internal/log"
)

var (
	flagConfig      string
	flagDemo        bool
	flagStuck       bool
	flagMode        string
	flagSensitivity float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "detector",
		Short: "Magnetometer metal detector (sensor → detection → MQTT)",
		Long: `detector reads a 3-axis magnetometer, calibrates the ambient field and
publishes a hysteresis-gated detection level on MQTT, driving a buzzer and a
vibration motor while metal is near.

Use --demo to run against a synthetic field without hardware or broker.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVar(&flagConfig, "config", "detector_config.txt", "Path to the KEY=VALUE config file")
	rootCmd.Flags().BoolVar(&flagDemo, "demo", false, "Use the mock magnetometer and tolerate a missing broker")
	rootCmd.Flags().BoolVar(&flagStuck, "stuck", false, "Freeze the demo sensor after a few seconds to exercise recovery")
	rootCmd.Flags().StringVar(&flagMode, "mode", "", "Detector mode: metal, stud or handheld (overrides config)")
	rootCmd.Flags().Float64Var(&flagSensitivity, "sensitivity", -1, "Sensitivity 0-100 (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := config.InitGlobal(flagConfig); err != nil {
		return err
	}
	cfg := config.Get()
	log.Init(cfg.LogLevel)

	if flagMode != "" {
		m, err := detector.ParseMode(flagMode)
		if err != nil {
			return err
		}
		cfg.DetectorMode = m
	}
	if cmd.Flags().Changed("sensitivity") {
		cfg.DetectorSensitivity = detector.ClampSensitivity(flagSensitivity)
	}

	log.Info("starting metal detector", "mode", cfg.DetectorMode, "sensitivity", cfg.DetectorSensitivity, "source", cfg.SensorSource, "demo", flagDemo)
	return app.RunDetector(cfg, app.DetectorOptions{Demo: flagDemo, Stuck: flagStuck})
}
