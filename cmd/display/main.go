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
		Use:          "display",
		Short:        "SSD1306 OLED detection meter (MQTT subscriber)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitGlobal(flagConfig); err != nil {
				return err
			}
			cfg := config.Get()
			log.Init(cfg.LogLevel)
			log.Info("starting OLED display")
			return app.RunDisplay(cfg)
		},
	}
	rootCmd.Flags().StringVar(&flagConfig, "config", "detector_config.txt", "Path to the KEY=VALUE config file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
