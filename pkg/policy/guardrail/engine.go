package guardrail

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"mercator-hq/overwatch/pkg/agent"
	"mercator-hq/overwatch/pkg/policy/store"
)

// Violation reasons produced by tool-request screening.
const (
	ReasonUnauthorizedTool = "unauthorized_tool"
	ReasonRoleNotPermitted = "role_not_permitted"
	ReasonModelNotAllowed  = "allowed_models"
)

// PolicySource supplies the active policy. *store.Store implements it.
type PolicySource interface {
	Policy() *store.PolicyDefinition
}

// ToolPolicy is the access entry for one tool.
type ToolPolicy struct {
	// Roles lists the roles allowed to call the tool. Empty means any role.
	Roles []string `yaml:"roles" json:"roles"`
}

// ToolAccess maps tool names to their access entries. Tools missing from the
// table are not authorized.
type ToolAccess map[string]ToolPolicy

// Decision is the outcome of a screening call.
type Decision struct {
	// Blocked is true when the request must not proceed.
	Blocked bool

	// RequiresRedaction is true when output matched a check under the
	// redact fail action. Redaction itself is left to the caller.
	RequiresRedaction bool

	// Reason is the violation code or check identifier that matched.
	Reason string
}

// Allowed reports whether the decision lets the request through unchanged.
func (d Decision) Allowed() bool {
	return !d.Blocked && !d.RequiresRedaction
}

// Option configures an Engine.
type Option func(*Engine) error

// WithRule registers an additional detection rule, or replaces a built-in
// rule with the same identifier.
func WithRule(r *Rule) Option {
	return func(e *Engine) error {
		if r == nil || r.ID == "" {
			return fmt.Errorf("rule cannot be nil or unnamed")
		}
		e.rules[r.ID] = r
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger != nil {
			e.logger = logger
		}
		return nil
	}
}

// Engine screens tasks, tool requests and output. It is safe for
// concurrent use.
type Engine struct {
	policies PolicySource
	access   ToolAccess
	rules    map[string]*Rule
	logger   *slog.Logger
}

// NewEngine creates a guardrail engine reading checks from policies.
func NewEngine(policies PolicySource, access ToolAccess, opts ...Option) (*Engine, error) {
	if policies == nil {
		return nil, fmt.Errorf("policy source cannot be nil")
	}

	e := &Engine{
		policies: policies,
		access:   make(ToolAccess, len(access)),
		rules:    make(map[string]*Rule, len(builtinRules)),
		logger:   slog.Default().With("component", "guardrail"),
	}
	for name, tp := range access {
		e.access[name] = ToolPolicy{Roles: append([]string{}, tp.Roles...)}
	}
	for _, r := range builtinRules {
		e.rules[r.ID] = r
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// KnownChecks returns the identifiers the engine can evaluate, sorted.
// Pass it to store.WithKnownChecks to reject policies naming unknown checks.
func (e *Engine) KnownChecks() []string {
	ids := make([]string, 0, len(e.rules))
	for id := range e.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AssertTaskSafe rejects a task whose description matches an enabled check,
// or which names a model outside the policy's allowed list.
func (e *Engine) AssertTaskSafe(task agent.Task) error {
	policy := e.policies.Policy()

	if model, ok := task.Parameters["model"].(string); ok && model != "" && !policy.AllowsModel(model) {
		e.logger.Warn("task rejected", "task_id", task.ID, "check", ReasonModelNotAllowed, "model", model)
		return &agent.TaskRejectedError{TaskID: task.ID, Check: ReasonModelNotAllowed}
	}

	if id, ok := e.firstMatch(policy, []string{task.Description}); ok {
		e.logger.Warn("task rejected", "task_id", task.ID, "check", id, "policy_version", policy.Version)
		return &agent.TaskRejectedError{TaskID: task.ID, Check: id}
	}
	return nil
}

// InspectToolRequest screens a proposed tool call. An empty tool name is a
// reasoning-only step and is never blocked.
func (e *Engine) InspectToolRequest(task agent.Task, toolName string, input agent.Payload) Decision {
	if toolName == "" {
		return Decision{}
	}

	tp, ok := e.access[toolName]
	if !ok {
		return e.block(task, toolName, ReasonUnauthorizedTool)
	}
	if len(tp.Roles) > 0 && !contains(tp.Roles, task.Role) {
		return e.block(task, toolName, ReasonRoleNotPermitted)
	}

	if id, ok := e.firstMatch(e.policies.Policy(), stringValues(input)); ok {
		return e.block(task, toolName, id)
	}
	return Decision{}
}

// InspectOutput screens agent output. Under the redact fail action a match
// is reported as requiring redaction instead of being blocked.
func (e *Engine) InspectOutput(text string) Decision {
	policy := e.policies.Policy()

	id, ok := e.firstMatch(policy, []string{text})
	if !ok {
		return Decision{}
	}
	if policy.FailAction == store.FailActionRedact {
		return Decision{RequiresRedaction: true, Reason: id}
	}
	return Decision{Blocked: true, Reason: id}
}

// InspectPayload screens every string in a tool payload the same way
// InspectOutput screens text.
func (e *Engine) InspectPayload(payload agent.Payload) Decision {
	policy := e.policies.Policy()

	id, ok := e.firstMatch(policy, stringValues(payload))
	if !ok {
		return Decision{}
	}
	if policy.FailAction == store.FailActionRedact {
		return Decision{RequiresRedaction: true, Reason: id}
	}
	return Decision{Blocked: true, Reason: id}
}

// Redact replaces every match of an enabled check with [REDACTED:<check>].
func (e *Engine) Redact(text string) string {
	for _, id := range e.policies.Policy().Checks {
		r, ok := e.rules[id]
		if !ok {
			continue
		}
		for _, re := range r.Patterns {
			text = re.ReplaceAllString(text, "[REDACTED:"+id+"]")
		}
	}
	return text
}

func (e *Engine) block(task agent.Task, tool, reason string) Decision {
	e.logger.Info("tool request blocked",
		"task_id", task.ID,
		"tool", tool,
		"role", task.Role,
		"reason", reason,
	)
	return Decision{Blocked: true, Reason: reason}
}

// firstMatch evaluates enabled checks in declared order against values.
// Checks the engine does not know are skipped.
func (e *Engine) firstMatch(policy *store.PolicyDefinition, values []string) (string, bool) {
	for _, id := range policy.Checks {
		r, ok := e.rules[id]
		if !ok {
			continue
		}
		for _, v := range values {
			if r.Match(v) {
				return id, true
			}
		}
	}
	return "", false
}

// stringValues collects string leaves of v, descending into maps and
// slices. Map keys are visited in sorted order.
func stringValues(v any) []string {
	var out []string
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				out = append(out, t)
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		case []string:
			for _, item := range t {
				walk(item)
			}
		case []map[string]any:
			for _, item := range t {
				walk(item)
			}
		}
	}
	walk(v)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
