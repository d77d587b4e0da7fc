// Package cli implements the soilspec command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/soilspec/internal/config"
	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
)

var (
	// Global flags
	cfgFile         string
	flagLogLevel    string
	flagDataDir     string
	flagResultsDir  string
	flagWorkers     int
	flagMergePolicy string

	// Loaded configuration
	cfg    *config.Global
	cfgErr error
	logger log.Logger = log.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "soilspec",
	Short: "Predict soil properties from VNIR reflectance spectra",
	Long: `soilspec trains regression models that predict soil chemical and physical
properties from visible and near-infrared reflectance spectra, evaluates them and
combines the results of independent runs into one report.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is ./soilspec.yaml)")
	f.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	f.StringVar(&flagDataDir, "data-dir", "", "directory holding the input tables (overrides config)")
	f.StringVar(&flagResultsDir, "results-dir", "", "directory for run files and reports (overrides config)")
	f.IntVar(&flagWorkers, "workers", 0, "concurrent jobs (overrides config)")
	f.StringVar(&flagMergePolicy, "merge-policy", "", "duplicate resolution: best or latest (overrides config)")
}

func loadConfig() {
	c, err := config.Load(cfgFile)
	if err != nil {
		cfgErr = err
		return
	}
	applyFlags(c)
	if err := c.Validate(); err != nil {
		cfgErr = err
		return
	}
	cfg = c

	level, err := log.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		cfgErr = err
		return
	}
	log.SetupLogger(cfg.LogLevel)
	logger = log.NewZerologProvider(level).GetLoggerWithName("soilspec")
}

func applyFlags(c *config.Global) {
	f := rootCmd.PersistentFlags()
	if f.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
	if f.Changed("data-dir") {
		c.DataDir = flagDataDir
	}
	if f.Changed("results-dir") {
		c.ResultsDir = flagResultsDir
	}
	if f.Changed("workers") && flagWorkers > 0 {
		c.Workers = flagWorkers
	}
	if f.Changed("merge-policy") {
		c.MergePolicy = flagMergePolicy
	}
}

// requireConfig returns the loaded configuration or the reason it is missing.
func requireConfig() (*config.Global, error) {
	if cfgErr != nil {
		return nil, errors.Wrap(cfgErr, "load config")
	}
	if cfg == nil {
		return nil, errors.New("no configuration loaded")
	}
	return cfg, nil
}
