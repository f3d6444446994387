package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/overwatch/pkg/cli"
	"mercator-hq/overwatch/pkg/config"
	"mercator-hq/overwatch/pkg/telemetry/health"
)

// errNotReady is returned by health when a check failed.
var errNotReady = errors.New("not ready")

var healthFlags struct {
	format  string
	timeout time.Duration
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the configured components are usable",
	Long: `Run readiness checks against the configured components:

  policy        the policy source (file, git or built-in) loads, parses and validates
  audit_log     the audit log hash chain is intact, or the log can be created
  metrics_file  the metrics textfile directory is writable

Exits non-zero when any check fails.

Examples:
  overwatch health --config overwatch.yaml
  overwatch health --format json`,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().StringVar(&healthFlags.format, "format", "text", "output format: text, json")
	healthCmd.Flags().DurationVar(&healthFlags.timeout, "timeout", health.DefaultCheckTimeout, "timeout per check")
}

func runHealth(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(healthFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	checker, err := newHealthChecker(cfg, healthFlags.timeout, logger)
	if err != nil {
		return err
	}
	logger.Debug("running health checks", "checks", checker.Len())

	report := checker.Run(cmd.Context())
	if err := printHealth(cmd.OutOrStdout(), format, report); err != nil {
		return err
	}
	if !report.Ready() {
		return errNotReady
	}
	return nil
}

// newHealthChecker registers a check for every configured component.
func newHealthChecker(cfg *config.Config, timeout time.Duration, logger *slog.Logger) (*health.Checker, error) {
	rules, err := customRules(cfg.Guardrails.CustomChecks)
	if err != nil {
		return nil, err
	}
	var known []string
	if cfg.Policy.Strict {
		known = knownChecks(rules)
	}

	src, err := policySource(cfg, logger)
	if err != nil {
		return nil, err
	}

	checker := health.New(timeout)
	checker.Register("policy", health.PolicySource(src, known))
	if cfg.Audit.Path != "" {
		checker.Register("audit_log", health.AuditLog(cfg.Audit.Path))
	}
	if cfg.Telemetry.Metrics.TextfilePath != "" {
		checker.Register("metrics_file", health.WritableDir(cfg.Telemetry.Metrics.TextfilePath))
	}
	return checker, nil
}

func printHealth(w io.Writer, format cli.OutputFormat, report health.Report) error {
	if format == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(w, report)
	}

	fmt.Fprintf(w, "Status: %s\n", report.Status)
	for _, name := range report.Names() {
		res := report.Checks[name]
		mark := "✓"
		if res.Status != health.StatusOK {
			mark = "✗"
		}
		line := fmt.Sprintf("  %s %-13s %s", mark, name, res.Duration.Round(time.Microsecond))
		if res.Message != "" {
			line += "  " + res.Message
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
