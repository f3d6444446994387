package agent

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is reported when the planner proposes a tool that is not
// registered. The orchestrator records it as a blocked step rather than
// returning it to the caller.
var ErrUnknownTool = errors.New("tool not registered")

// ErrAuditNotPersisted is wrapped into the error returned with a task whose
// audit record could not be written to the log. The response, when there is
// one, is still returned alongside it.
var ErrAuditNotPersisted = errors.New("audit record not persisted")

// TaskRejectedError is returned when the guardrails deny a task before any
// step runs.
type TaskRejectedError struct {
	// TaskID is the rejected task.
	TaskID string

	// Check is the identifier of the guardrail check that matched.
	Check string
}

// Error implements the error interface.
func (e *TaskRejectedError) Error() string {
	return fmt.Sprintf("task %q rejected due to %s policy", e.TaskID, e.Check)
}

// ToolValidationError is returned when a tool receives or produces a payload
// that is missing required fields. It aborts the task.
type ToolValidationError struct {
	// Tool is the tool name.
	Tool string

	// Stage is "input" or "output".
	Stage string

	// Missing lists the absent required fields.
	Missing []string

	// Cause is the underlying schema error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ToolValidationError) Error() string {
	if e.Stage == "output" {
		return fmt.Sprintf("tool %q produced incomplete output: missing %v", e.Tool, e.Missing)
	}
	return fmt.Sprintf("tool %q missing required input fields: %v", e.Tool, e.Missing)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ToolValidationError) Unwrap() error {
	return e.Cause
}

// ToolExecutionError wraps an error returned by a tool's Run method.
type ToolExecutionError struct {
	Tool  string
	Step  int
	Cause error
}

// Error implements the error interface.
func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed at step %d: %v", e.Tool, e.Step, e.Cause)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// IsTaskRejected reports whether err is a task-level guardrail rejection.
func IsTaskRejected(err error) bool {
	var rejected *TaskRejectedError
	return errors.As(err, &rejected)
}
