package config

import "time"

// Default values for configuration fields.
const (
	DefaultEnvironment = "development"

	// Agent defaults
	DefaultMaxSteps    = 6
	DefaultStepTimeout = 20 * time.Second
	DefaultWorkers     = 4
	DefaultLookupTool  = "data_lookup"

	// Policy defaults
	DefaultPolicyWatch         = false
	DefaultPolicyWatchDebounce = 100 * time.Millisecond
	DefaultPolicyStrict        = true
	DefaultPolicyGitBranch     = "main"
	DefaultPolicyGitPath       = "policy.yaml"
	DefaultPolicyGitAuth       = "none"
	DefaultPolicyGitTimeout    = 30 * time.Second

	// Audit defaults
	DefaultAuditRedactPayloads = true
	DefaultAuditHistorySize    = 100
	DefaultAuditWriteTimeout   = 5 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultLoggingRedactPII    = true
	DefaultMetricsEnabled      = true
	DefaultMetricsNamespace    = "overwatch"
	DefaultMetricsSubsystem    = "agent"
	DefaultTracingEnabled      = false
	DefaultTracingSampler      = "ratio"
	DefaultTracingSampleRatio  = 0.1
	DefaultTracingEndpoint     = "localhost:4317"
	DefaultTracingServiceName  = "overwatch"
	DefaultTracingOTLPInsecure = true
	DefaultTracingOTLPTimeout  = 10 * time.Second
)

// DefaultLookupKeywords are the description keywords that trigger a lookup.
var DefaultLookupKeywords = []string{"lookup"}

// DefaultToolRoles are the roles allowed to call the default lookup tool.
var DefaultToolRoles = []string{"analyst", "admin", "auditor"}

// Default creates a configuration with every default applied.
// Boolean fields whose default is true are set here rather than in
// ApplyDefaults, since a YAML document decoded over this value keeps
// them unless it sets them explicitly.
func Default() *Config {
	cfg := &Config{
		Policy: PolicyConfig{
			Watch:  DefaultPolicyWatch,
			Strict: DefaultPolicyStrict,
		},
		Audit: AuditConfig{
			RedactPayloads: DefaultAuditRedactPayloads,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactPII: DefaultLoggingRedactPII},
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Tracing: TracingConfig{
				Enabled: DefaultTracingEnabled,
				OTLP:    OTLPConfig{Insecure: DefaultTracingOTLPInsecure},
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = DefaultEnvironment
	}

	// Agent defaults
	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = DefaultMaxSteps
	}
	if cfg.Agent.StepTimeout == 0 {
		cfg.Agent.StepTimeout = DefaultStepTimeout
	}
	if cfg.Agent.Workers == 0 {
		cfg.Agent.Workers = DefaultWorkers
	}
	if cfg.Agent.LookupTool == "" {
		cfg.Agent.LookupTool = DefaultLookupTool
	}
	if len(cfg.Agent.LookupKeywords) == 0 {
		cfg.Agent.LookupKeywords = append([]string{}, DefaultLookupKeywords...)
	}

	// Policy defaults
	if cfg.Policy.WatchDebounce == 0 {
		cfg.Policy.WatchDebounce = DefaultPolicyWatchDebounce
	}
	if cfg.Policy.Git.Repository != "" {
		if cfg.Policy.Git.Branch == "" {
			cfg.Policy.Git.Branch = DefaultPolicyGitBranch
		}
		if cfg.Policy.Git.Path == "" {
			cfg.Policy.Git.Path = DefaultPolicyGitPath
		}
		if cfg.Policy.Git.Auth.Type == "" {
			cfg.Policy.Git.Auth.Type = DefaultPolicyGitAuth
		}
		if cfg.Policy.Git.Timeout == 0 {
			cfg.Policy.Git.Timeout = DefaultPolicyGitTimeout
		}
	}

	// Guardrail defaults: a nil table gets the lookup tool entry, an
	// explicitly empty table stays empty.
	if cfg.Guardrails.Tools == nil {
		cfg.Guardrails.Tools = map[string]ToolAccessConfig{
			cfg.Agent.LookupTool: {Roles: append([]string{}, DefaultToolRoles...)},
		}
	}

	// Audit defaults
	if cfg.Audit.HistorySize == 0 {
		cfg.Audit.HistorySize = DefaultAuditHistorySize
	}
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = DefaultAuditWriteTimeout
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

// applyTelemetryDefaults applies default values to telemetry configuration.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Metrics.StepLatencyBuckets) == 0 {
		cfg.Metrics.StepLatencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 20}
	}
	if len(cfg.Metrics.TaskDurationBuckets) == 0 {
		cfg.Metrics.TaskDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120}
	}

	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.OTLP.Timeout == 0 {
		cfg.Tracing.OTLP.Timeout = DefaultTracingOTLPTimeout
	}
}
