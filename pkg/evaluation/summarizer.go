// Package evaluation scores a finished step history.
package evaluation

import (
	"fmt"
	"math"

	"mercator-hq/overwatch/pkg/agent"
)

// Scoring constants.
const (
	// BlockPenalty is subtracted from the safety score per blocked step.
	BlockPenalty = 0.1

	// MinSafetyScore is the floor of the safety score.
	MinSafetyScore = 0.1
)

// Metric keys.
const (
	MetricTaskID        = "task_id"
	MetricStatus        = "status"
	MetricStepCount     = "step_count"
	MetricBlockedSteps  = "blocked_steps"
	MetricLatencyTotal  = "latency_ms_total"
	MetricSafetyScore   = "safety_score"
	MetricSummary       = "summary"
	MetricToolsUsed     = "tools_used"
	MetricStepLimitHit  = "step_limit_reached"
	MetricSlowSteps     = "slow_steps"
	MetricPolicyVersion = "policy_version"
)

// Metrics is the outcome of Summarize.
type Metrics struct {
	Status         agent.Status
	StepCount      int
	BlockedSteps   int
	LatencyMSTotal float64
	SafetyScore    float64
	Summary        string
	ToolsUsed      []string
}

// Map renders the metrics as the generic mapping stored on responses and
// audit records.
func (m Metrics) Map(taskID string) map[string]any {
	tools := append([]string{}, m.ToolsUsed...)
	return map[string]any{
		MetricTaskID:       taskID,
		MetricStatus:       string(m.Status),
		MetricStepCount:    m.StepCount,
		MetricBlockedSteps: m.BlockedSteps,
		MetricLatencyTotal: m.LatencyMSTotal,
		MetricSafetyScore:  m.SafetyScore,
		MetricSummary:      m.Summary,
		MetricToolsUsed:    tools,
	}
}

// Summarizer derives status, safety score and summary text from steps.
// It is stateless and safe for concurrent use.
type Summarizer struct{}

// NewSummarizer creates a summarizer.
func NewSummarizer() *Summarizer {
	return &Summarizer{}
}

// Summarize aggregates steps. Status is blocked iff at least one step is
// blocked, otherwise completed.
func (s *Summarizer) Summarize(task agent.Task, steps []agent.StepResult) Metrics {
	m := Metrics{
		Status:    agent.StatusCompleted,
		StepCount: len(steps),
		ToolsUsed: []string{},
	}

	seen := make(map[string]bool)
	for _, step := range steps {
		if step.Blocked {
			m.BlockedSteps++
		}
		m.LatencyMSTotal += step.LatencyMS
		if step.ToolUsed != "" && !step.Blocked && !seen[step.ToolUsed] {
			seen[step.ToolUsed] = true
			m.ToolsUsed = append(m.ToolsUsed, step.ToolUsed)
		}
	}

	if m.BlockedSteps > 0 {
		m.Status = agent.StatusBlocked
	}
	m.SafetyScore = SafetyScore(m.BlockedSteps)
	m.Summary = summary(m.Status, steps)
	return m
}

// SafetyScore returns max(MinSafetyScore, 1 - BlockPenalty*blocked).
func SafetyScore(blocked int) float64 {
	score := 1.0 - BlockPenalty*float64(blocked)
	// Round away float noise so 1 - 0.1*3 reports 0.7.
	score = math.Round(score*1e9) / 1e9
	return math.Max(MinSafetyScore, score)
}

func summary(status agent.Status, steps []agent.StepResult) string {
	if status == agent.StatusBlocked {
		violation := "unknown"
		for _, s := range steps {
			if s.Violation != "" {
				violation = s.Violation
			}
		}
		return fmt.Sprintf("Task blocked due to guardrail violation: %s.", violation)
	}
	if n := len(steps); n > 0 && steps[n-1].ToolOutput != nil {
		return fmt.Sprintf("Task completed using %s.", steps[n-1].ToolUsed)
	}
	return "Task completed without tool execution."
}

// StepLimitSummary describes a run that exhausted its step budget.
func StepLimitSummary(maxSteps int) string {
	return fmt.Sprintf("Task stopped after reaching the %d-step limit without a termination signal.", maxSteps)
}
