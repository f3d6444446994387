package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/overwatch/pkg/config"
)

// OtherLabel replaces label values once the cardinality limit is reached.
const OtherLabel = "other"

// DefaultMaxCardinality bounds the distinct tool label values.
const DefaultMaxCardinality = 200

// Collector owns the Prometheus registry and every overwatch metric.
//
// All methods are safe on a nil *Collector and on a disabled one, so
// components can hold an optional collector without guarding each call.
// Tool names come from caller-supplied task parameters, so the tool label
// goes through a CardinalityLimiter.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	taskMetrics   *TaskMetrics
	policyMetrics *PolicyMetrics

	toolLimiter *CardinalityLimiter
}

// NewCollector creates a metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a new one is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.StepLatencyBuckets) == 0 {
		cfg.StepLatencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 20}
	}
	if len(cfg.TaskDurationBuckets) == 0 {
		cfg.TaskDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120}
	}

	return &Collector{
		config:        cfg,
		registry:      registry,
		taskMetrics:   NewTaskMetrics(cfg, registry),
		policyMetrics: NewPolicyMetrics(cfg, registry),
		toolLimiter:   NewCardinalityLimiter(DefaultMaxCardinality),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordTask records a finished task.
//
// Parameters:
//   - status: terminal status ("completed", "blocked", "step_limit", "rejected", "error")
//   - steps: number of recorded steps
//   - duration: wall time of the whole task
//   - safetyScore: the evaluation safety score
func (c *Collector) RecordTask(status string, steps int, duration time.Duration, safetyScore float64) {
	if !c.enabled() {
		return
	}
	c.taskMetrics.RecordTask(status, steps, duration, safetyScore)
}

// RecordAbortedTask records a task that was rejected or failed before a
// response was built.
func (c *Collector) RecordAbortedTask(status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.taskMetrics.RecordAborted(status, duration)
}

// RecordStep records one executed or blocked step.
func (c *Collector) RecordStep(tool string, blocked bool, latency time.Duration) {
	if !c.enabled() {
		return
	}
	c.taskMetrics.RecordStep(c.toolLabel(tool), blocked, latency)
}

// RecordSlowStep counts a step that exceeded the advisory step timeout.
func (c *Collector) RecordSlowStep(tool string) {
	if !c.enabled() {
		return
	}
	c.taskMetrics.RecordSlowStep(c.toolLabel(tool))
}

// RecordGuardrailBlock counts a guardrail decision that blocked a task or step.
//
// Parameters:
//   - stage: "task", "tool_request" or "output"
//   - reason: the matched check id or violation code
func (c *Collector) RecordGuardrailBlock(stage, reason string) {
	if !c.enabled() {
		return
	}
	c.taskMetrics.RecordGuardrailBlock(stage, reason)
}

// RecordPolicyReload records a policy reload attempt.
func (c *Collector) RecordPolicyReload(success bool, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.policyMetrics.RecordReload(success, duration)
}

// SetActivePolicy exports the active policy identity as an info gauge.
func (c *Collector) SetActivePolicy(name, version, fingerprint string) {
	if !c.enabled() {
		return
	}
	c.policyMetrics.SetActive(name, version, fingerprint)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// WriteTextfile writes the registry in Prometheus text format to path,
// atomically, for the node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if !c.enabled() || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %q: %w", path, err)
	}
	return nil
}

func (c *Collector) toolLabel(tool string) string {
	if tool == "" {
		return "none"
	}
	if !c.toolLimiter.Allow(tool) {
		return OtherLabel
	}
	return tool
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether a label value may be used. Known values are always
// allowed; new values are allowed until the limit is reached.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
