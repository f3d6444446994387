package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "agent.max_steps").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateAgent(&cfg.Agent)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateGuardrails(&cfg.Guardrails)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateAgent(cfg *AgentConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxSteps < 1 {
		errs = append(errs, FieldError{
			Field:   "agent.max_steps",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.MaxSteps),
		})
	}
	if cfg.StepTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "agent.step_timeout",
			Message: "step timeout must not be negative",
		})
	}
	if cfg.Workers < 1 {
		errs = append(errs, FieldError{
			Field:   "agent.workers",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Workers),
		})
	}
	if cfg.LookupTool == "" {
		errs = append(errs, FieldError{
			Field:   "agent.lookup_tool",
			Message: "lookup tool is required",
		})
	}

	return errs
}

func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.Watch && cfg.FilePath == "" {
		errs = append(errs, FieldError{
			Field:   "policy.watch",
			Message: "watch requires policy.file_path",
		})
	}
	if cfg.WatchDebounce < 0 {
		errs = append(errs, FieldError{
			Field:   "policy.watch_debounce",
			Message: "debounce must not be negative",
		})
	}
	if cfg.ReloadSchedule != "" {
		if cfg.FilePath == "" && cfg.Git.Repository == "" {
			errs = append(errs, FieldError{
				Field:   "policy.reload_schedule",
				Message: "reload schedule requires policy.file_path or policy.git.repository",
			})
		}
		if _, err := cron.ParseStandard(cfg.ReloadSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "policy.reload_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.ReloadSchedule, err),
			})
		}
	}
	errs = append(errs, validatePolicyGit(cfg)...)

	return errs
}

func validatePolicyGit(cfg *PolicyConfig) []FieldError {
	git := &cfg.Git
	if git.Repository == "" {
		return nil
	}

	var errs []FieldError
	if cfg.FilePath != "" {
		errs = append(errs, FieldError{
			Field:   "policy.git.repository",
			Message: "policy.file_path and policy.git.repository are mutually exclusive",
		})
	}
	if cfg.Watch {
		errs = append(errs, FieldError{
			Field:   "policy.watch",
			Message: "watch is not supported for git policies, use reload_schedule",
		})
	}
	switch git.Auth.Type {
	case "", "none":
	case "token":
		if git.Auth.Token == "" {
			errs = append(errs, FieldError{
				Field:   "policy.git.auth.token",
				Message: "token auth requires a token",
			})
		}
	case "ssh":
		if git.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{
				Field:   "policy.git.auth.ssh_key_path",
				Message: "ssh auth requires ssh_key_path",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "policy.git.auth.type",
			Message: fmt.Sprintf("must be one of none, token, ssh, got %q", git.Auth.Type),
		})
	}
	if git.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "policy.git.timeout",
			Message: "timeout must not be negative",
		})
	}

	return errs
}

func validateGuardrails(cfg *GuardrailsConfig) []FieldError {
	var errs []FieldError

	for name := range cfg.Tools {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, FieldError{
				Field:   "guardrails.tools",
				Message: "tool name cannot be empty",
			})
		}
	}

	seen := make(map[string]bool, len(cfg.CustomChecks))
	for i, c := range cfg.CustomChecks {
		field := fmt.Sprintf("guardrails.custom_checks[%d]", i)
		if c.ID == "" {
			errs = append(errs, FieldError{Field: field + ".id", Message: "id is required"})
		} else if seen[c.ID] {
			errs = append(errs, FieldError{Field: field + ".id", Message: fmt.Sprintf("duplicate check %q", c.ID)})
		}
		seen[c.ID] = true

		if len(c.Patterns) == 0 {
			errs = append(errs, FieldError{Field: field + ".patterns", Message: "at least one pattern is required"})
		}
		for j, p := range c.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("%s.patterns[%d]", field, j),
					Message: fmt.Sprintf("invalid regular expression: %v", err),
				})
			}
		}
	}

	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	if cfg.HistorySize < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.history_size",
			Message: "history size must not be negative",
		})
	}
	if cfg.MaxFieldLength < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.max_field_length",
			Message: "max field length must not be negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.write_timeout",
			Message: "write timeout must not be negative",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	for i, p := range cfg.Logging.RedactPatterns {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Namespace == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.namespace",
			Message: "namespace is required when metrics are enabled",
		})
	}
	errs = append(errs, validateBuckets("telemetry.metrics.step_latency_buckets", cfg.Metrics.StepLatencyBuckets)...)
	errs = append(errs, validateBuckets("telemetry.metrics.task_duration_buckets", cfg.Metrics.TaskDurationBuckets)...)

	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "tracing endpoint is required when tracing is enabled",
			})
		}
		if !validSamplers[cfg.Tracing.Sampler] {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
			})
		}
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}
	if cfg.Tracing.OTLP.Timeout > 5*time.Minute {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.otlp.timeout",
			Message: "export timeout exceeds reasonable limit (5m)",
		})
	}

	return errs
}

// validateBuckets checks that histogram buckets are positive and strictly
// increasing.
func validateBuckets(field string, buckets []float64) []FieldError {
	var errs []FieldError
	for i, b := range buckets {
		if b <= 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "bucket must be positive",
			})
		}
		if i > 0 && b <= buckets[i-1] {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "buckets must be strictly increasing",
			})
		}
	}
	return errs
}
