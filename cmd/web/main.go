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

func main() {
	rootCmd := &cobra.Command{
		Use:          "web",
		Short:        "Metal detector web view (MQTT subscriber)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitGlobal(flagConfig); err != nil {
				return err
			}
			cfg := config.Get()
			log.Init(cfg.LogLevel)
			log.Info("starting metal detector web server", "port", cfg.WebServerPort)
			return app.RunWeb(cfg)
		},
	}
	rootCmd.Flags().StringVar(&flagConfig, "config", "detector_config.txt", "Path to the KEY=VALUE config file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
