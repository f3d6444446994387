package cli

import (
	"errors"
	"fmt"

	"mercator-hq/overwatch/pkg/agent"
	"mercator-hq/overwatch/pkg/config"
	"mercator-hq/overwatch/pkg/policy/store"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitRejected = 2
	ExitTool     = 3
	ExitConfig   = 4
	ExitBlocked  = 5
	ExitAudit    = 6
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ErrTaskBlocked is returned by commands that finished a task with status
// blocked when the caller asked for a non-zero exit on blocks.
var ErrTaskBlocked = errors.New("task blocked by guardrails")

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		cfgErr        *ConfigError
		validationErr config.ValidationError
		parseErr      *store.ParseError
		policyErr     *store.ValidationError
		loadErr       *store.PolicyLoadError
		toolValErr    *agent.ToolValidationError
		toolExecErr   *agent.ToolExecutionError
	)
	switch {
	case errors.Is(err, agent.ErrAuditNotPersisted):
		return ExitAudit
	case agent.IsTaskRejected(err):
		return ExitRejected
	case errors.Is(err, ErrTaskBlocked):
		return ExitBlocked
	case errors.As(err, &toolValErr), errors.As(err, &toolExecErr):
		return ExitTool
	case errors.As(err, &cfgErr), errors.As(err, &validationErr),
		errors.As(err, &policyErr), errors.As(err, &parseErr), errors.As(err, &loadErr):
		return ExitConfig
	default:
		return ExitFailure
	}
}
