// Package cmd is the passcam command tree.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/passcam/internal/config"
	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/cjeanneret/passcam/internal/version"
)

// DefaultConfigPath is used when --config is not given.
var DefaultConfigPath = filepath.Join("configs", "passcam.yaml")

// configPath is shared by every hardware subcommand.
var configPath string

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "passcam",
		Short: "Photograph satellite passes with a pan/tilt camera mount.",
		Long: `passcam drives a two-axis stepper mount and a camera to photograph
satellites at culmination.

The run command calibrates the mount, reads the pass schedule, slews ahead
of each culmination and takes five exposures around it. The predict command
produces that schedule from TLE element sets.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigPath, "path to configuration file")

	root.AddCommand(newRunCommand(), newCalibrateCommand(), newPredictCommand())
	version.AttachCobraVersionCommand(root)
	return root
}

// Execute runs the CLI and exits with non-zero status on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and starts the logger at its level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Configuration")
	debug.Value("Config path", configPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("GPIO backend", cfg.Defaults.GPIOBackend)
	return cfg, nil
}
