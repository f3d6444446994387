package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/overwatch/pkg/agent"
	"mercator-hq/overwatch/pkg/agent/planner"
	"mercator-hq/overwatch/pkg/evaluation"
	"mercator-hq/overwatch/pkg/evidence"
	"mercator-hq/overwatch/pkg/evidence/recorder"
	"mercator-hq/overwatch/pkg/policy/guardrail"
	"mercator-hq/overwatch/pkg/policy/store"
	"mercator-hq/overwatch/pkg/telemetry/logging"
	"mercator-hq/overwatch/pkg/telemetry/metrics"
	"mercator-hq/overwatch/pkg/telemetry/tracing"
	"mercator-hq/overwatch/pkg/tools"
)

// Default loop limits.
const (
	DefaultMaxSteps    = 6
	DefaultStepTimeout = 20 * time.Second
)

// Guardrail stages reported to metrics.
const (
	StageTask        = "task"
	StageToolRequest = "tool_request"
	StageRegistry    = "registry"
)

// UnknownToolRationale is recorded on the blocked step produced when the
// planner proposes a tool missing from the registry.
const UnknownToolRationale = "Requested tool not registered; aborting."

// Config contains the loop limits.
type Config struct {
	// MaxSteps bounds the number of steps per task.
	// Default: 6
	MaxSteps int

	// StepTimeout is advisory. A step that takes longer is logged and
	// counted but never interrupted.
	// Default: 20 seconds
	StepTimeout time.Duration
}

// DefaultConfig returns the default loop limits.
func DefaultConfig() *Config {
	return &Config{
		MaxSteps:    DefaultMaxSteps,
		StepTimeout: DefaultStepTimeout,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records task, step and guardrail metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithTracer wraps tasks and steps in spans.
func WithTracer(t *tracing.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithPlanner replaces the default planner.
func WithPlanner(p *planner.Planner) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.planner = p
		}
	}
}

// WithSummarizer replaces the default summarizer.
func WithSummarizer(s *evaluation.Summarizer) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.summarizer = s
		}
	}
}

// WithPolicyStore stamps audit records and spans with the active policy
// snapshot of s.
func WithPolicyStore(s *store.Store) Option {
	return func(o *Orchestrator) { o.policies = s }
}

// Orchestrator runs tasks through the plan, screen, execute and record
// loop. It owns the tool registry. A single Orchestrator is safe for
// concurrent RunTask calls as long as its tools are.
type Orchestrator struct {
	config     *Config
	registry   *tools.Registry
	guard      *guardrail.Engine
	recorder   *recorder.Recorder
	planner    *planner.Planner
	summarizer *evaluation.Summarizer
	policies   *store.Store
	metrics    *metrics.Collector
	tracer     *tracing.Tracer
	logger     *slog.Logger
}

// New creates an orchestrator. A nil config uses DefaultConfig.
func New(registry *tools.Registry, guard *guardrail.Engine, rec *recorder.Recorder, cfg *Config, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("tool registry cannot be nil")
	}
	if guard == nil {
		return nil, fmt.Errorf("guardrail engine cannot be nil")
	}
	if rec == nil {
		return nil, fmt.Errorf("recorder cannot be nil")
	}

	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = DefaultStepTimeout
	}

	o := &Orchestrator{
		config:     &c,
		registry:   registry,
		guard:      guard,
		recorder:   rec,
		planner:    planner.New(),
		summarizer: evaluation.NewSummarizer(),
		logger:     slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns a copy of the effective loop limits.
func (o *Orchestrator) Config() Config {
	return *o.config
}

// Registry returns the tool registry.
func (o *Orchestrator) Registry() *tools.Registry {
	return o.registry
}

// RunTask executes task and returns its response.
//
// A task rejected by pre-screening returns a *agent.TaskRejectedError and a
// tool that fails validation or execution returns the tool's error. In both
// cases the audit record is finalized before the error is returned.
//
// If the audit record cannot be written, the error wraps
// agent.ErrAuditNotPersisted. A task that otherwise finished still returns
// its response next to that error.
func (o *Orchestrator) RunTask(ctx context.Context, task agent.Task) (*agent.AgentResponse, error) {
	task = task.WithDefaults()
	start := time.Now()

	ctx = logging.WithTaskID(ctx, task.ID)
	ctx = logging.WithRole(ctx, task.Role)
	ctx, span := o.tracer.Start(ctx, tracing.SpanTask, tracing.TaskAttributes(task.ID, task.Role))
	defer span.End()

	ref := o.policyRef()
	tracing.SetPolicyAttributes(span, ref.Name, ref.Version, ref.Fingerprint)

	if err := o.recorder.StartTask(task, ref); err != nil {
		tracing.SetError(span, err)
		return nil, fmt.Errorf("open audit record: %w", err)
	}

	o.logger.InfoContext(ctx, "task started", "policy_version", ref.Version)

	if err := o.guard.AssertTaskSafe(task); err != nil {
		var rejected *agent.TaskRejectedError
		if errors.As(err, &rejected) {
			o.metrics.RecordGuardrailBlock(StageTask, rejected.Check)
			tracing.AddEvent(span, tracing.EventTaskBlocked, attribute.String(tracing.AttrViolation, rejected.Check))
		}
		o.logger.WarnContext(ctx, "task rejected by pre-screen", "error", err)
		return nil, o.abort(ctx, span, task.ID, evidence.StatusRejected, start, err)
	}

	var (
		steps      []agent.StepResult
		terminated bool
		slowSteps  int
	)

	for stepNum := 1; stepNum <= o.config.MaxSteps; stepNum++ {
		result, outcome, err := o.runStep(ctx, task, stepNum, steps)
		if err != nil {
			return nil, o.abort(ctx, span, task.ID, evidence.StatusError, start, err)
		}
		if outcome == outcomeTerminate {
			terminated = true
			break
		}

		steps = append(steps, result)
		if err := o.recorder.LogStep(task.ID, result); err != nil {
			o.logger.ErrorContext(ctx, "failed to record step", "step", stepNum, "error", err)
		}
		if outcome == outcomeSlow {
			slowSteps++
		}

		if result.Blocked || result.Complete() {
			terminated = true
			break
		}
	}

	resp := o.finish(task, steps, terminated, slowSteps, ref)

	o.metrics.RecordTask(string(resp.Status), len(resp.Steps), time.Since(start), resp.SafetyScore)
	tracing.SetOutcomeAttributes(span, string(resp.Status), len(resp.Steps), resp.SafetyScore)

	var auditErr error
	if err := o.recorder.EndTask(ctx, resp); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist audit record", "error", err)
		auditErr = fmt.Errorf("task %s: %w: %w", task.ID, agent.ErrAuditNotPersisted, err)
	}

	o.logger.InfoContext(ctx, "task finished",
		"status", resp.Status,
		"steps", len(resp.Steps),
		"safety_score", resp.SafetyScore,
		"duration", time.Since(start),
	)
	return resp, auditErr
}

type stepOutcome int

const (
	outcomeStep stepOutcome = iota
	outcomeSlow
	outcomeTerminate
)

// runStep plans and executes one step. A terminate outcome carries no
// result; the reasoning is written to the audit record directly.
func (o *Orchestrator) runStep(ctx context.Context, task agent.Task, stepNum int, history []agent.StepResult) (agent.StepResult, stepOutcome, error) {
	ctx = logging.WithStep(ctx, stepNum)
	ctx, span := o.tracer.Start(ctx, tracing.SpanStep, tracing.StepAttributes(stepNum))
	defer span.End()

	plan := o.planner.Plan(task, history)
	if plan.Terminate {
		if err := o.recorder.LogReasoning(task.ID, stepNum, plan.Rationale); err != nil {
			o.logger.ErrorContext(ctx, "failed to record reasoning", "error", err)
		}
		tracing.AddEvent(span, tracing.EventTerminated, attribute.String("rationale", plan.Rationale))
		o.logger.DebugContext(ctx, "planner terminated", "rationale", plan.Rationale)
		return agent.StepResult{}, outcomeTerminate, nil
	}

	result := agent.StepResult{
		Step:      stepNum,
		Rationale: plan.Rationale,
		ToolUsed:  plan.ToolName,
		ToolInput: plan.ToolInput,
	}

	if decision := o.screen(ctx, task, plan); decision.Blocked {
		result.Blocked = true
		result.Violation = decision.Reason
		o.recordStep(span, result, 0)
		return result, outcomeStep, nil
	}

	tool, ok := o.registry.Get(plan.ToolName)
	if !ok && plan.ToolName != "" {
		result.Rationale = UnknownToolRationale
		result.Blocked = true
		result.Violation = agent.ViolationUnknownTool
		o.metrics.RecordGuardrailBlock(StageRegistry, agent.ViolationUnknownTool)
		o.logger.WarnContext(ctx, "planner proposed unregistered tool",
			"tool", plan.ToolName,
			"error", agent.ErrUnknownTool,
		)
		o.recordStep(span, result, 0)
		return result, outcomeStep, nil
	}
	if !ok {
		o.recordStep(span, result, 0)
		return result, outcomeStep, nil
	}

	output, latency, err := o.execute(ctx, tool, stepNum, plan.ToolInput)
	if err != nil {
		tracing.SetError(span, err)
		return result, outcomeStep, err
	}
	result.ToolOutput = output
	result.LatencyMS = float64(latency.Microseconds()) / 1000.0
	o.recordStep(span, result, latency)

	if latency > o.config.StepTimeout {
		span.SetAttributes(attribute.Bool(tracing.AttrSlow, true))
		o.metrics.RecordSlowStep(result.ToolUsed)
		o.logger.WarnContext(ctx, "step exceeded advisory timeout",
			"tool", result.ToolUsed,
			"latency", latency,
			"step_timeout", o.config.StepTimeout,
		)
		return result, outcomeSlow, nil
	}
	return result, outcomeStep, nil
}

// screen runs the tool-request guardrail under its own span.
func (o *Orchestrator) screen(ctx context.Context, task agent.Task, plan planner.Plan) guardrail.Decision {
	ctx, span := o.tracer.Start(ctx, tracing.SpanGuardrail)
	defer span.End()

	decision := o.guard.InspectToolRequest(task, plan.ToolName, plan.ToolInput)
	if decision.Blocked {
		span.SetAttributes(attribute.String(tracing.AttrViolation, decision.Reason))
		o.metrics.RecordGuardrailBlock(StageToolRequest, decision.Reason)
		o.logger.WarnContext(ctx, "tool request blocked",
			"tool", plan.ToolName,
			"violation", decision.Reason,
		)
	}
	return decision
}

// execute validates input, runs the tool and validates output. The
// returned latency covers the whole sequence.
func (o *Orchestrator) execute(ctx context.Context, tool tools.Tool, stepNum int, input agent.Payload) (agent.Payload, time.Duration, error) {
	started := time.Now()

	if err := tool.ValidateInput(input); err != nil {
		return nil, time.Since(started), err
	}

	output, err := tool.Run(ctx, input)
	if err != nil {
		return nil, time.Since(started), &agent.ToolExecutionError{Tool: tool.Name(), Step: stepNum, Cause: err}
	}

	if err := tool.ValidateOutput(output); err != nil {
		return nil, time.Since(started), err
	}
	return output, time.Since(started), nil
}

func (o *Orchestrator) recordStep(span trace.Span, result agent.StepResult, latency time.Duration) {
	tracing.SetStepAttributes(span, result.ToolUsed, result.Blocked, result.Violation, result.LatencyMS)
	o.metrics.RecordStep(result.ToolUsed, result.Blocked, latency)
}

// finish builds the response from the collected steps.
func (o *Orchestrator) finish(task agent.Task, steps []agent.StepResult, terminated bool, slowSteps int, ref evidence.PolicyRef) *agent.AgentResponse {
	summary := o.summarizer.Summarize(task, steps)

	m := summary.Map(task.ID)
	m[evaluation.MetricSlowSteps] = slowSteps
	m[evaluation.MetricPolicyVersion] = ref.Version

	status := summary.Status
	text := summary.Summary
	if !terminated && status != agent.StatusBlocked {
		status = agent.StatusStepLimit
		text = evaluation.StepLimitSummary(o.config.MaxSteps)
		m[evaluation.MetricStatus] = string(status)
		m[evaluation.MetricSummary] = text
		m[evaluation.MetricStepLimitHit] = true
	}

	if steps == nil {
		steps = []agent.StepResult{}
	}
	return &agent.AgentResponse{
		TaskID:      task.ID,
		Status:      status,
		Summary:     text,
		Steps:       steps,
		Metrics:     m,
		SafetyScore: summary.SafetyScore,
		CompletedAt: time.Now().UTC(),
	}
}

// abort finalizes the audit record for a failed task and returns cause,
// joined with agent.ErrAuditNotPersisted when the record could not be written.
func (o *Orchestrator) abort(ctx context.Context, span trace.Span, taskID, status string, start time.Time, cause error) error {
	tracing.SetError(span, cause)
	o.metrics.RecordAbortedTask(status, time.Since(start))
	if err := o.recorder.Abort(ctx, taskID, status, cause); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist aborted audit record", "status", status, "error", err)
		return errors.Join(cause, fmt.Errorf("task %s: %w: %w", taskID, agent.ErrAuditNotPersisted, err))
	}
	return cause
}

func (o *Orchestrator) policyRef() evidence.PolicyRef {
	if o.policies == nil {
		return evidence.PolicyRef{}
	}
	snap := o.policies.Snapshot()
	if snap == nil || snap.Policy == nil {
		return evidence.PolicyRef{}
	}
	return evidence.PolicyRef{
		Name:        snap.Policy.Name,
		Version:     snap.Policy.Version,
		Fingerprint: snap.Fingerprint,
	}
}
