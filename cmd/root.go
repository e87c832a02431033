package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/windrose-labs/wxbench/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "wxbench",
	Short: "Weather model verification benchmark",
	Long:  "Scores AI weather forecast models (AIFS, GenCast, GraphCast, FourCastNet) against ERA5 reanalysis for a target location, with accuracy-band sweeps across lead horizons.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
