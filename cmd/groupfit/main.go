// Command groupfit runs the GroupFit API server and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/groupfit/server/internal/config"
	"github.com/groupfit/server/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "groupfit",
	Short:         "GroupFit social fitness API server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides GROUPFIT_CONFIG)")
}

func loadConfig() (config.Config, *logging.Logger, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.New("groupfit", cfg.Logging.Level, cfg.Logging.Format), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
