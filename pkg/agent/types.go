package agent

import (
	"time"

	"github.com/google/uuid"
)

// Status is the terminal status of a task.
type Status string

const (
	// StatusCompleted means the loop ended on a termination signal with no
	// blocked steps.
	StatusCompleted Status = "completed"

	// StatusBlocked means at least one step was blocked by the guardrails.
	StatusBlocked Status = "blocked"

	// StatusStepLimit means the loop exhausted the step budget without a
	// termination signal and without any blocked step.
	StatusStepLimit Status = "step_limit"
)

// ViolationUnknownTool is the violation code recorded when the planner
// proposes a tool that is not present in the registry.
const ViolationUnknownTool = "unknown_tool"

// Payload is the generic tool input/output document.
type Payload = map[string]any

// Task represents a unit of work for the agent.
type Task struct {
	// ID is unique per run.
	ID string `json:"task_id"`

	// Description is the free-text task statement.
	Description string `json:"description"`

	// Role is the caller role used for tool authorization.
	Role string `json:"role"`

	// Parameters is an open mapping of caller-supplied parameters.
	// A "tool" entry names the tool the caller wants to run.
	Parameters map[string]any `json:"parameters,omitempty"`

	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewTask creates a task with a random ID and the current time.
// Parameters are copied so later changes by the caller are not observed.
func NewTask(description, role string, params map[string]any) Task {
	return Task{
		ID:          uuid.NewString(),
		Description: description,
		Role:        role,
		Parameters:  copyParams(params),
		CreatedAt:   time.Now().UTC(),
	}
}

// WithDefaults returns a copy of t with an ID and creation time filled in
// when they are missing.
func (t Task) WithDefaults() Task {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.Parameters = copyParams(t.Parameters)
	return t
}

// RequestedTool returns the tool named in the task parameters, if any.
func (t Task) RequestedTool() (string, bool) {
	v, ok := t.Parameters["tool"]
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// StepResult is the outcome of a single reasoning step.
type StepResult struct {
	Step       int     `json:"step"`
	Rationale  string  `json:"rationale"`
	ToolUsed   string  `json:"tool,omitempty"`
	ToolInput  Payload `json:"tool_input,omitempty"`
	ToolOutput Payload `json:"tool_output,omitempty"`
	LatencyMS  float64 `json:"latency_ms"`
	Blocked    bool    `json:"blocked"`
	Violation  string  `json:"violation,omitempty"`
}

// Complete reports whether the tool output explicitly marks the task as done.
func (s StepResult) Complete() bool {
	if s.ToolOutput == nil {
		return false
	}
	done, ok := s.ToolOutput["complete"].(bool)
	return ok && done
}

// AgentResponse is the structured output returned to the caller.
type AgentResponse struct {
	TaskID      string         `json:"task_id"`
	Status      Status         `json:"status"`
	Summary     string         `json:"summary"`
	Steps       []StepResult   `json:"steps"`
	Metrics     map[string]any `json:"metrics"`
	SafetyScore float64        `json:"safety_score"`
	CompletedAt time.Time      `json:"completed_at"`
}

// BlockedCount returns the number of blocked steps in the response.
func (r *AgentResponse) BlockedCount() int {
	n := 0
	for _, s := range r.Steps {
		if s.Blocked {
			n++
		}
	}
	return n
}

func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
