// Package config provides configuration management for overwatch.
//
// Configuration is read from a YAML file decoded over the defaults, then
// environment variable overrides are applied and the result is validated.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("overwatch.yaml")            // file only
//	cfg, err := config.LoadConfigWithEnvOverrides("overwatch.yaml")
//	cfg, err := config.FromEnv()                               // defaults + env
//
// # Environment Variable Overrides
//
// Variables follow the naming convention OVERWATCH_SECTION_FIELD, for example
// OVERWATCH_AGENT_MAX_STEPS or OVERWATCH_TELEMETRY_LOGGING_LEVEL. The
// unprefixed names AGENT_MAX_STEPS, AGENT_STEP_TIMEOUT_SECONDS,
// AUDIT_LOG_PATH and APP_ENV are also honored; a prefixed variable wins
// when both are set. Malformed values are reported as a ValidationError.
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// There is no process-wide configuration instance. Callers load a *Config
// once and pass the relevant sections to each component.
package config
