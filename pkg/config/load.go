package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding file values.
const EnvPrefix = "OVERWATCH_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The document is decoded over Default(), so omitted fields keep their
// defaults. The configuration is not modified by environment variables;
// use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes a YAML document over the defaults. Unknown fields are
// rejected. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// Maps decode by merging, so the default table would leak into a
	// document that defines its own.
	cfg.Guardrails.Tools = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. An empty path starts from the defaults.
//
// The loading sequence is:
//  1. Load YAML from file (or defaults)
//  2. Apply environment variable overrides
//  3. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	// Overrides can enable sections whose defaults were skipped.
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a configuration from defaults and environment variables
// only.
func FromEnv() (*Config, error) {
	return LoadConfigWithEnvOverrides("")
}

// lookupFunc matches os.LookupEnv so tests can supply their own environment.
type lookupFunc func(key string) (string, bool)

// envOverride binds environment variable names to a setter. The first
// name present wins; prefixed names are listed before legacy ones.
type envOverride struct {
	names []string
	set   func(cfg *Config, val string) error
}

var envOverrides = []envOverride{
	{[]string{EnvPrefix + "ENVIRONMENT", "APP_ENV"}, func(c *Config, v string) error {
		c.Environment = v
		return nil
	}},
	{[]string{EnvPrefix + "AGENT_MAX_STEPS", "AGENT_MAX_STEPS"}, func(c *Config, v string) error {
		return setInt(&c.Agent.MaxSteps, v)
	}},
	{[]string{EnvPrefix + "AGENT_STEP_TIMEOUT"}, func(c *Config, v string) error {
		return setDuration(&c.Agent.StepTimeout, v)
	}},
	{[]string{"AGENT_STEP_TIMEOUT_SECONDS"}, func(c *Config, v string) error {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Agent.StepTimeout = time.Duration(secs) * time.Second
		return nil
	}},
	{[]string{EnvPrefix + "AGENT_WORKERS"}, func(c *Config, v string) error {
		return setInt(&c.Agent.Workers, v)
	}},
	{[]string{EnvPrefix + "POLICY_FILE_PATH"}, func(c *Config, v string) error {
		c.Policy.FilePath = v
		return nil
	}},
	{[]string{EnvPrefix + "POLICY_WATCH"}, func(c *Config, v string) error {
		return setBool(&c.Policy.Watch, v)
	}},
	{[]string{EnvPrefix + "POLICY_RELOAD_SCHEDULE"}, func(c *Config, v string) error {
		c.Policy.ReloadSchedule = v
		return nil
	}},
	{[]string{EnvPrefix + "AUDIT_PATH", "AUDIT_LOG_PATH"}, func(c *Config, v string) error {
		c.Audit.Path = v
		return nil
	}},
	{[]string{EnvPrefix + "POLICY_GIT_REPOSITORY"}, func(c *Config, v string) error {
		c.Policy.Git.Repository = v
		return nil
	}},
	{[]string{EnvPrefix + "POLICY_GIT_TOKEN"}, func(c *Config, v string) error {
		c.Policy.Git.Auth.Token = v
		return nil
	}},
	{[]string{EnvPrefix + "AUDIT_REDACT_PAYLOADS"}, func(c *Config, v string) error {
		return setBool(&c.Audit.RedactPayloads, v)
	}},
	{[]string{EnvPrefix + "TELEMETRY_LOGGING_LEVEL"}, func(c *Config, v string) error {
		c.Telemetry.Logging.Level = v
		return nil
	}},
	{[]string{EnvPrefix + "TELEMETRY_LOGGING_FORMAT"}, func(c *Config, v string) error {
		c.Telemetry.Logging.Format = v
		return nil
	}},
	{[]string{EnvPrefix + "TELEMETRY_METRICS_ENABLED"}, func(c *Config, v string) error {
		return setBool(&c.Telemetry.Metrics.Enabled, v)
	}},
	{[]string{EnvPrefix + "TELEMETRY_METRICS_TEXTFILE_PATH"}, func(c *Config, v string) error {
		c.Telemetry.Metrics.TextfilePath = v
		return nil
	}},
	{[]string{EnvPrefix + "TELEMETRY_TRACING_ENABLED"}, func(c *Config, v string) error {
		return setBool(&c.Telemetry.Tracing.Enabled, v)
	}},
	{[]string{EnvPrefix + "TELEMETRY_TRACING_ENDPOINT"}, func(c *Config, v string) error {
		c.Telemetry.Tracing.Endpoint = v
		return nil
	}},
	{[]string{EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"}, func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.Telemetry.Tracing.SampleRatio = f
		return nil
	}},
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Malformed values are reported rather than ignored.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	var errs []FieldError
	for _, o := range envOverrides {
		for _, name := range o.names {
			val, ok := lookup(name)
			if !ok || strings.TrimSpace(val) == "" {
				continue
			}
			if err := o.set(cfg, strings.TrimSpace(val)); err != nil {
				errs = append(errs, FieldError{
					Field:   name,
					Message: fmt.Sprintf("invalid value %q: %v", val, err),
				})
			}
			break
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func setInt(dst *int, v string) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = i
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
