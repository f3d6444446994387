package config

import "time"

// Config is the root configuration structure for overwatch.
// It contains the agent loop settings, the policy source, the guardrail
// tool access table, audit log settings and telemetry.
type Config struct {
	// Environment is a free-form deployment label (e.g., "development",
	// "production"). It is attached to logs and traces.
	// Default: "development"
	Environment string `yaml:"environment"`

	// Agent contains the orchestrator loop settings.
	Agent AgentConfig `yaml:"agent"`

	// Policy contains the policy document location and reload settings.
	Policy PolicyConfig `yaml:"policy"`

	// Guardrails contains the tool access table and custom detection rules.
	Guardrails GuardrailsConfig `yaml:"guardrails"`

	// Audit contains the audit log configuration.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains configuration for logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AgentConfig contains the orchestrator loop settings.
type AgentConfig struct {
	// MaxSteps bounds the number of reasoning steps per task.
	// Default: 6
	MaxSteps int `yaml:"max_steps"`

	// StepTimeout is the advisory per-step budget. Steps exceeding it are
	// logged and counted but never cut off.
	// Default: 20s
	StepTimeout time.Duration `yaml:"step_timeout"`

	// Workers is the number of tasks processed concurrently by the serve
	// command.
	// Default: 4
	Workers int `yaml:"workers"`

	// LookupTool is the tool proposed for lookup-intent tasks.
	// Default: "data_lookup"
	LookupTool string `yaml:"lookup_tool"`

	// LookupKeywords trigger the lookup rule when found in a task
	// description.
	// Default: ["lookup"]
	LookupKeywords []string `yaml:"lookup_keywords"`
}

// PolicyConfig contains the policy document location and reload settings.
type PolicyConfig struct {
	// FilePath is the path to the YAML policy document. When empty the
	// built-in default policy is used.
	// Default: "" (built-in policy)
	FilePath string `yaml:"file_path"`

	// Watch enables hot reload when the policy file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// WatchDebounce is the quiet period before a detected change triggers
	// a reload.
	// Default: 100ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// ReloadSchedule is an optional cron expression for periodic reloads,
	// for filesystems where change notification is unavailable.
	// Example: "*/5 * * * *" or "@every 30s"
	ReloadSchedule string `yaml:"reload_schedule"`

	// Strict rejects policy documents naming checks the guardrail engine
	// does not know.
	// Default: true
	Strict bool `yaml:"strict"`

	// Git loads the policy document from a git repository instead of
	// FilePath. Combine with ReloadSchedule to poll for new commits.
	Git GitPolicyConfig `yaml:"git"`
}

// GitPolicyConfig locates the policy document in a git repository.
type GitPolicyConfig struct {
	// Repository is the clone URL or local repository path. Empty
	// disables git loading.
	Repository string `yaml:"repository"`

	// Branch is the branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the policy file relative to the repository root.
	// Default: "policy.yaml"
	Path string `yaml:"path"`

	// LocalPath is where the working copy is kept.
	// Default: "<tmp>/overwatch-policies"
	LocalPath string `yaml:"local_path"`

	// Auth selects how to authenticate against the remote.
	Auth GitAuthConfig `yaml:"auth"`

	// Timeout bounds a single clone or pull.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// GitAuthConfig contains git authentication settings.
type GitAuthConfig struct {
	// Type is "none", "token" or "ssh".
	// Default: "none"
	Type string `yaml:"type"`

	// Token is a personal access token for HTTPS remotes. Prefer the
	// OVERWATCH_POLICY_GIT_TOKEN environment variable.
	Token string `yaml:"token"`

	// SSHKeyPath is a private key file with 0600 permissions.
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase unlocks an encrypted key.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// GuardrailsConfig contains the tool access table and custom rules.
type GuardrailsConfig struct {
	// Tools maps tool names to the roles allowed to call them. A tool
	// missing from the table is not authorized. An empty role list
	// authorizes every role.
	// Default: {"data_lookup": {roles: [analyst, admin, auditor]}}
	Tools map[string]ToolAccessConfig `yaml:"tools"`

	// CustomChecks adds detection rules that policies may enable by id.
	// A custom check with a built-in id replaces the built-in rule.
	CustomChecks []CustomCheckConfig `yaml:"custom_checks"`
}

// ToolAccessConfig is the access entry for one tool.
type ToolAccessConfig struct {
	// Roles lists the roles allowed to call the tool.
	Roles []string `yaml:"roles"`
}

// CustomCheckConfig defines a regex-based detection rule.
type CustomCheckConfig struct {
	// ID is the check identifier referenced by policy documents.
	ID string `yaml:"id"`

	// Description is a human-readable description.
	Description string `yaml:"description"`

	// Patterns are regular expressions; any match triggers the check.
	Patterns []string `yaml:"patterns"`
}

// AuditConfig contains the audit log configuration.
type AuditConfig struct {
	// Path is the append-only JSONL audit log. When empty, records are
	// kept in memory only.
	// Default: ""
	Path string `yaml:"path"`

	// RedactPayloads masks guardrail matches in recorded tool payloads
	// and rationales before they are persisted.
	// Default: true
	RedactPayloads bool `yaml:"redact_payloads"`

	// HistorySize bounds the number of finished records kept in memory
	// for LatestRecord lookups.
	// Default: 100
	HistorySize int `yaml:"history_size"`

	// MaxFieldLength truncates recorded string fields. Zero disables
	// truncation.
	// Default: 0
	MaxFieldLength int `yaml:"max_field_length"`

	// WriteTimeout bounds a single sink write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables automatic PII redaction in logs.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns contains custom PII redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom PII redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric name prefix.
	// Default: "overwatch"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "agent"
	Subsystem string `yaml:"subsystem"`

	// TextfilePath, when set, is where the serve and run commands write
	// the registry in Prometheus text format on exit (node_exporter
	// textfile collector).
	TextfilePath string `yaml:"textfile_path"`

	// StepLatencyBuckets defines histogram buckets for tool step latency (seconds).
	// Default: [0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 20]
	StepLatencyBuckets []float64 `yaml:"step_latency_buckets"`

	// TaskDurationBuckets defines histogram buckets for task duration (seconds).
	// Default: [0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120]
	TaskDurationBuckets []float64 `yaml:"task_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "overwatch"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}
