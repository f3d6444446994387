package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanTask      = "overwatch.task"
	SpanStep      = "overwatch.step"
	SpanGuardrail = "overwatch.guardrail"
)

// Attribute keys use the "overwatch.*" namespace.
const (
	AttrTaskID      = "overwatch.task.id"
	AttrRole        = "overwatch.task.role"
	AttrStatus      = "overwatch.task.status"
	AttrStepCount   = "overwatch.task.step_count"
	AttrSafetyScore = "overwatch.task.safety_score"

	AttrStep      = "overwatch.step.number"
	AttrTool      = "overwatch.step.tool"
	AttrBlocked   = "overwatch.step.blocked"
	AttrViolation = "overwatch.step.violation"
	AttrLatencyMS = "overwatch.step.latency_ms"
	AttrSlow      = "overwatch.step.slow"

	AttrPolicyName        = "overwatch.policy.name"
	AttrPolicyVersion     = "overwatch.policy.version"
	AttrPolicyFingerprint = "overwatch.policy.fingerprint"
)

// Event names.
const (
	EventTerminated  = "planner.terminated"
	EventTaskBlocked = "guardrail.task_rejected"
)

// TaskAttributes returns the start attributes of a task span.
func TaskAttributes(taskID, role string) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrRole, role),
	)
}

// SetPolicyAttributes records the policy snapshot a task ran under.
func SetPolicyAttributes(span trace.Span, name, version, fingerprint string) {
	span.SetAttributes(
		attribute.String(AttrPolicyName, name),
		attribute.String(AttrPolicyVersion, version),
		attribute.String(AttrPolicyFingerprint, fingerprint),
	)
}

// SetOutcomeAttributes records the terminal state of a task.
func SetOutcomeAttributes(span trace.Span, status string, steps int, safetyScore float64) {
	span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int(AttrStepCount, steps),
		attribute.Float64(AttrSafetyScore, safetyScore),
	)
}

// StepAttributes returns the start attributes of a step span.
func StepAttributes(step int) trace.SpanStartOption {
	return trace.WithAttributes(attribute.Int(AttrStep, step))
}

// SetStepAttributes records the outcome of a step.
func SetStepAttributes(span trace.Span, tool string, blocked bool, violation string, latencyMS float64) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrTool, tool),
		attribute.Bool(AttrBlocked, blocked),
		attribute.Float64(AttrLatencyMS, latencyMS),
	}
	if violation != "" {
		attrs = append(attrs, attribute.String(AttrViolation, violation))
	}
	span.SetAttributes(attrs...)
}

// AddEvent adds an event to the span with optional attributes.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
