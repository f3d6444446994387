package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/overwatch/pkg/cli"
	"mercator-hq/overwatch/pkg/config"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "overwatch",
	Short: "Overwatch - guarded agent task runner",
	Long: `Overwatch drives an agent's step-by-step task execution under an enforced
safety policy and records an auditable trace of every decision.

Each task is pre-screened, then planned, screened and executed one tool step
at a time. Guardrail checks come from a hot-reloadable policy document and
every finished task is appended to a hash-chained JSONL audit log.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a code derived from the
// returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (same as --log-level debug)")
}

// loadConfig loads the configuration named by --config, applies environment
// overrides and the global logging flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}
