package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/overwatch/pkg/agent"
	"mercator-hq/overwatch/pkg/cli"
	"mercator-hq/overwatch/pkg/policy/store"
)

var policyFlags struct {
	format      string
	description string
	role        string
	tool        string
	params      map[string]string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and test guardrail policies",
	Long: `Inspect and test guardrail policies.

Subcommands:
  validate - Parse and validate a policy file
  show     - Show the active policy
  check    - Screen a task against the active policy without running it

Examples:
  # Validate a policy file before deploying it
  overwatch policy validate policies/default.yaml

  # Show the policy the configuration resolves to
  overwatch policy show --config overwatch.yaml

  # Check whether a task would be rejected
  overwatch policy check --description "Email alice@example.com" --role analyst`,
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a policy file",
	Long: `Parse and validate a policy file.

Check identifiers must name a built-in check or a custom check from the
configuration. Without an argument the configured policy.file_path is used.

Examples:
  # Validate a file
  overwatch policy validate policy.yaml

  # Validate the configured policy and print JSON
  overwatch policy validate --config overwatch.yaml --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: validatePolicy,
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active policy",
	Long: `Load the configured policy source and show the active definition together
with its fingerprint and source.

Examples:
  overwatch policy show
  overwatch policy show --format json`,
	RunE: showPolicy,
}

var policyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Screen a task against the active policy",
	Long: `Run the task pre-screen and, with --tool, the tool request screen against
the active policy. Nothing is executed or recorded.

Exit codes:
  0  allowed
  2  task rejected
  5  tool request blocked

Examples:
  # Pre-screen a description
  overwatch policy check --description "Lookup user-1" --role analyst

  # Also screen a tool request
  overwatch policy check --description "Lookup user-1" --role guest --tool data_lookup --param query=user-1`,
	RunE: checkPolicy,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyValidateCmd, policyShowCmd, policyCheckCmd)

	for _, c := range []*cobra.Command{policyValidateCmd, policyShowCmd, policyCheckCmd} {
		c.Flags().StringVar(&policyFlags.format, "format", "text", "output format: text, json")
	}

	policyCheckCmd.Flags().StringVarP(&policyFlags.description, "description", "d", "", "task description")
	policyCheckCmd.Flags().StringVarP(&policyFlags.role, "role", "r", "", "caller role")
	policyCheckCmd.Flags().StringVar(&policyFlags.tool, "tool", "", "tool request to screen")
	policyCheckCmd.Flags().StringToStringVarP(&policyFlags.params, "param", "p", nil, "task parameter key=value (repeatable)")
	_ = policyCheckCmd.MarkFlagRequired("description")
}

// policyReport is the output of validate and show.
type policyReport struct {
	Valid       bool                    `json:"valid"`
	Source      string                  `json:"source"`
	Fingerprint string                  `json:"fingerprint,omitempty"`
	Policy      *store.PolicyDefinition `json:"policy,omitempty"`
	Errors      []string                `json:"errors,omitempty"`
}

// checkReport is the output of check.
type checkReport struct {
	Allowed bool   `json:"allowed"`
	Stage   string `json:"stage,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Policy  string `json:"policy"`
	Version string `json:"version"`
}

func policyFormat() (cli.OutputFormat, error) {
	format, err := cli.ParseFormat(policyFlags.format)
	if err != nil {
		return "", err
	}
	if format == cli.FormatCSV {
		return "", cli.NewConfigError("format", "policy commands support text and json output")
	}
	return format, nil
}

func validatePolicy(cmd *cobra.Command, args []string) error {
	format, err := policyFormat()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := cfg.Policy.FilePath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return cli.NewConfigError("policy.file_path", "no policy file given and none configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &store.PolicyLoadError{Source: path, Message: "read failed", Cause: err}
	}

	rules, err := customRules(cfg.Guardrails.CustomChecks)
	if err != nil {
		return err
	}
	known := make(map[string]bool)
	for _, id := range knownChecks(rules) {
		known[id] = true
	}

	report := policyReport{Source: path, Fingerprint: store.Fingerprint(data)}
	p, err := store.Parse(data, path)
	if err == nil {
		report.Policy = p
		err = store.Validate(p, known)
	}
	if err != nil {
		report.Errors = errorLines(err)
	}
	report.Valid = err == nil

	if ferr := printPolicyReport(cmd.OutOrStdout(), format, report); ferr != nil {
		return ferr
	}
	return err
}

func showPolicy(cmd *cobra.Command, args []string) error {
	format, err := policyFormat()
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

	policies, _, err := newGuardrails(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	snap := policies.Snapshot()
	return printPolicyReport(cmd.OutOrStdout(), format, policyReport{
		Valid:       true,
		Source:      snap.Source,
		Fingerprint: snap.Fingerprint,
		Policy:      snap.Policy,
	})
}

func checkPolicy(cmd *cobra.Command, args []string) error {
	format, err := policyFormat()
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

	policies, guard, err := newGuardrails(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	policy := policies.Policy()
	report := checkReport{Allowed: true, Policy: policy.Name, Version: policy.Version}

	task := agent.NewTask(policyFlags.description, policyFlags.role, parseParams(policyFlags.params))

	var result error
	if err := guard.AssertTaskSafe(task); err != nil {
		var rejected *agent.TaskRejectedError
		if !errors.As(err, &rejected) {
			return err
		}
		report.Allowed, report.Stage, report.Reason = false, "task", rejected.Check
		result = err
	} else if policyFlags.tool != "" {
		d := guard.InspectToolRequest(task, policyFlags.tool, task.Parameters)
		if d.Blocked {
			report.Allowed, report.Stage, report.Reason = false, "tool_request", d.Reason
			result = fmt.Errorf("tool %s: %w", policyFlags.tool, cli.ErrTaskBlocked)
		}
	}

	w := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		if err := cli.NewFormatter(cli.FormatJSON).FormatTo(w, report); err != nil {
			return err
		}
		return result
	}

	fmt.Fprintf(w, "Policy:  %s (%s)\n", report.Policy, report.Version)
	if report.Allowed {
		fmt.Fprintln(w, "Result:  allowed")
	} else {
		fmt.Fprintf(w, "Result:  blocked at %s (%s)\n", report.Stage, report.Reason)
	}
	return result
}

func printPolicyReport(w io.Writer, format cli.OutputFormat, r policyReport) error {
	if format == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(w, r)
	}

	fmt.Fprintf(w, "Source:      %s\n", r.Source)
	if r.Fingerprint != "" {
		fmt.Fprintf(w, "Fingerprint: %s\n", r.Fingerprint)
	}
	if r.Policy != nil {
		fmt.Fprintf(w, "Name:        %s\n", r.Policy.Name)
		fmt.Fprintf(w, "Version:     %s\n", r.Policy.Version)
		fmt.Fprintf(w, "Checks:      %s\n", listOrNone(r.Policy.Checks))
		fmt.Fprintf(w, "Models:      %s\n", listOrNone(r.Policy.AllowedModels))
		fmt.Fprintf(w, "Fail action: %s\n", r.Policy.FailAction)
	}
	if r.Valid {
		fmt.Fprintln(w, "✓ Policy is valid")
		return nil
	}
	fmt.Fprintln(w, "✗ Policy is invalid:")
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  - %s\n", e)
	}
	return nil
}

// errorLines flattens a joined error into one line per cause.
func errorLines(err error) []string {
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		var lines []string
		for _, e := range multi.Unwrap() {
			lines = append(lines, e.Error())
		}
		return lines
	}
	return []string{err.Error()}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
