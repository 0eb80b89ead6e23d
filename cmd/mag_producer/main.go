// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/metal_detector/internal/app"
	"github.com/relabs-tech/metal_detector/internal/config"
	"github.com/relabs-tech/metal_detector/internal/log"
)

var flagConfig string

func loadConfig() (*config.Config, error) {
	if err := config.InitGlobal(flagConfig); err != nil {
		return nil, err
	}
	cfg := config.Get()
	log.Init(cfg.LogLevel)
	return cfg, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "mag_producer",
		Short:        "HMC5883 magnetometer → MQTT raw sample producer",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log.Info("starting magnetometer producer", "bus", cfg.HMCI2CBus, "topic", cfg.TopicMagRaw)
			return app.RunMagProducer(cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "detector_config.txt", "Path to the KEY=VALUE config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "regs",
		Short: "Print the HMC5883 configuration and status registers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return app.RunRegisterDump(cfg, cmd.OutOrStdout())
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
