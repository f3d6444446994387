package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/overwatch/pkg/agent"
	"mercator-hq/overwatch/pkg/cli"
	"mercator-hq/overwatch/pkg/evidence"
)

var runFlags struct {
	taskID        string
	description   string
	role          string
	params        map[string]string
	taskFile      string
	demo          bool
	output        string
	failOnBlocked bool
	maxSteps      int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single task",
	Long: `Run a single task through the guarded reasoning loop and print the response.

The task comes from flags, from a JSON file (--task-file, "-" for stdin) or
from the built-in demo (--demo). The finished audit record is appended to the
configured audit log.

Exit codes:
  0  task finished (completed, blocked or step_limit)
  2  task rejected by pre-screening
  3  tool validation or execution failure
  4  configuration or policy error
  5  task blocked and --fail-on-blocked set

Examples:
  # Run the demo task
  overwatch run --demo

  # Run a lookup as an analyst
  overwatch run --description "Lookup user-1 account status" --role analyst

  # Request a tool explicitly
  overwatch run --description "Find alice" --role analyst --param tool=data_lookup --param query=alice

  # Read the task from a file and print JSON
  overwatch run --task-file task.json --output json`,
	RunE: runTask,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.taskID, "task-id", "", "task identifier (default: random UUID)")
	runCmd.Flags().StringVarP(&runFlags.description, "description", "d", "", "task description")
	runCmd.Flags().StringVarP(&runFlags.role, "role", "r", "", "caller role")
	runCmd.Flags().StringToStringVarP(&runFlags.params, "param", "p", nil, "task parameter key=value (repeatable)")
	runCmd.Flags().StringVarP(&runFlags.taskFile, "task-file", "f", "", "JSON task file (\"-\" reads stdin)")
	runCmd.Flags().BoolVar(&runFlags.demo, "demo", false, "run the built-in demo task")
	runCmd.Flags().StringVarP(&runFlags.output, "output", "o", "text", "output format: text, json")
	runCmd.Flags().BoolVar(&runFlags.failOnBlocked, "fail-on-blocked", false, "exit non-zero when the task is blocked")
	runCmd.Flags().IntVar(&runFlags.maxSteps, "max-steps", 0, "override the step budget")
}

// demoTask is the task run by --demo.
func demoTask() agent.Task {
	return agent.Task{
		ID:          "task-001",
		Description: "Lookup user-1 account status",
		Role:        "analyst",
	}
}

func runTask(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(runFlags.output)
	if err != nil {
		return err
	}
	if format == cli.FormatCSV {
		return cli.NewConfigError("output", "run supports text and json output")
	}

	task, err := taskFromFlags(cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.maxSteps > 0 {
		cfg.Agent.MaxSteps = runFlags.maxSteps
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil {
			a.logger.Error("shutdown failed", "error", cerr)
		}
	}()

	resp, err := a.orch.RunTask(ctx, task)
	if resp != nil {
		if perr := printResponse(cmd.OutOrStdout(), format, resp, a.recorder.LatestRecord(), runFlags.demo); perr != nil {
			return perr
		}
	}
	if err != nil {
		if resp == nil && agent.IsTaskRejected(err) {
			printRecord(cmd.OutOrStdout(), format, a.recorder.LatestRecord())
		}
		return cli.NewCommandError("run", err)
	}

	if runFlags.failOnBlocked && resp.Status == agent.StatusBlocked {
		return fmt.Errorf("task %s: %w", resp.TaskID, cli.ErrTaskBlocked)
	}
	return nil
}

// taskFromFlags builds the task from --demo, --task-file or the inline
// flags, in that order of precedence.
func taskFromFlags(stdin io.Reader) (agent.Task, error) {
	switch {
	case runFlags.demo:
		return demoTask(), nil
	case runFlags.taskFile != "":
		return readTaskFile(runFlags.taskFile, stdin)
	case runFlags.description == "":
		return agent.Task{}, cli.NewConfigError("description", "a task description, --task-file or --demo is required")
	}

	task := agent.NewTask(runFlags.description, runFlags.role, parseParams(runFlags.params))
	if runFlags.taskID != "" {
		task.ID = runFlags.taskID
	}
	return task, nil
}

func readTaskFile(path string, stdin io.Reader) (agent.Task, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return agent.Task{}, fmt.Errorf("failed to open task file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var task agent.Task
	if err := json.NewDecoder(r).Decode(&task); err != nil {
		return agent.Task{}, cli.NewConfigError("task-file", fmt.Sprintf("invalid task JSON: %v", err))
	}
	if task.Description == "" {
		return agent.Task{}, cli.NewConfigError("task-file", "task description is required")
	}
	return task, nil
}

// parseParams converts flag values, keeping booleans and numbers typed so
// tools see the same values they would from a JSON task.
func parseParams(raw map[string]string) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	params := make(map[string]any, len(raw))
	for k, v := range raw {
		if b, err := strconv.ParseBool(v); err == nil {
			params[k] = b
			continue
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			params[k] = n
			continue
		}
		params[k] = v
	}
	return params
}

// responseOutput is the JSON shape printed by run.
type responseOutput struct {
	Response *agent.AgentResponse  `json:"response"`
	Audit    *evidence.AuditRecord `json:"audit_record,omitempty"`
}

// stepTable renders response steps as a table.
type stepTable []agent.StepResult

func (s stepTable) Header() []string {
	return []string{"STEP", "TOOL", "BLOCKED", "VIOLATION", "LATENCY_MS", "RATIONALE"}
}

func (s stepTable) Rows() [][]string {
	rows := make([][]string, len(s))
	for i, step := range s {
		tool := step.ToolUsed
		if tool == "" {
			tool = "-"
		}
		violation := step.Violation
		if violation == "" {
			violation = "-"
		}
		rows[i] = []string{
			strconv.Itoa(step.Step),
			tool,
			strconv.FormatBool(step.Blocked),
			violation,
			strconv.FormatFloat(step.LatencyMS, 'f', 2, 64),
			step.Rationale,
		}
	}
	return rows
}

func printResponse(w io.Writer, format cli.OutputFormat, resp *agent.AgentResponse, record *evidence.AuditRecord, withAudit bool) error {
	if format == cli.FormatJSON {
		out := responseOutput{Response: resp}
		if withAudit {
			out.Audit = record
		}
		return cli.NewFormatter(cli.FormatJSON).FormatTo(w, out)
	}

	fmt.Fprintf(w, "Task:         %s\n", resp.TaskID)
	fmt.Fprintf(w, "Status:       %s\n", resp.Status)
	fmt.Fprintf(w, "Summary:      %s\n", resp.Summary)
	fmt.Fprintf(w, "Safety score: %.2f\n", resp.SafetyScore)
	if len(resp.Steps) > 0 {
		fmt.Fprintln(w)
		if err := cli.NewFormatter(cli.FormatText).FormatTo(w, stepTable(resp.Steps)); err != nil {
			return err
		}
	}
	if withAudit && record != nil {
		fmt.Fprintln(w, "\nAudit record:")
		return cli.NewFormatter(cli.FormatJSON).FormatTo(w, record)
	}
	return nil
}

func printRecord(w io.Writer, format cli.OutputFormat, record *evidence.AuditRecord) {
	if record == nil {
		return
	}
	if format == cli.FormatJSON {
		_ = cli.NewFormatter(cli.FormatJSON).FormatTo(w, responseOutput{Audit: record})
		return
	}
	fmt.Fprintf(w, "Task:   %s\n", record.TaskID)
	fmt.Fprintf(w, "Status: %s\n", record.Status)
	fmt.Fprintf(w, "Error:  %s\n", record.Error)
}
