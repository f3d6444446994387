package evaluation

import (
	"reflect"
	"testing"

	"mercator-hq/overwatch/pkg/agent"
)

func TestSafetyScore(t *testing.T) {
	tests := []struct {
		blocked int
		want    float64
	}{
		{0, 1.0},
		{1, 0.9},
		{3, 0.7},
		{9, 0.1},
		{10, 0.1},
		{25, 0.1},
	}
	for _, tt := range tests {
		if got := SafetyScore(tt.blocked); got != tt.want {
			t.Errorf("SafetyScore(%d) = %v, want %v", tt.blocked, got, tt.want)
		}
	}
}

func TestSummarizer_Summarize(t *testing.T) {
	task := agent.Task{ID: "t1"}

	tests := []struct {
		name        string
		steps       []agent.StepResult
		wantStatus  agent.Status
		wantScore   float64
		wantSummary string
		wantTools   []string
	}{
		{
			name:        "no steps",
			wantStatus:  agent.StatusCompleted,
			wantScore:   1.0,
			wantSummary: "Task completed without tool execution.",
			wantTools:   []string{},
		},
		{
			name: "tool used",
			steps: []agent.StepResult{
				{Step: 1, ToolUsed: "data_lookup", ToolOutput: agent.Payload{"complete": true}, LatencyMS: 2},
			},
			wantStatus:  agent.StatusCompleted,
			wantScore:   1.0,
			wantSummary: "Task completed using data_lookup.",
			wantTools:   []string{"data_lookup"},
		},
		{
			name: "blocked names last violation",
			steps: []agent.StepResult{
				{Step: 1, ToolUsed: "data_lookup", ToolOutput: agent.Payload{}},
				{Step: 2, ToolUsed: "shell", Blocked: true, Violation: "unauthorized_tool"},
			},
			wantStatus:  agent.StatusBlocked,
			wantScore:   0.9,
			wantSummary: "Task blocked due to guardrail violation: unauthorized_tool.",
			wantTools:   []string{"data_lookup"},
		},
		{
			name: "blocked without violation code",
			steps: []agent.StepResult{
				{Step: 1, Blocked: true},
			},
			wantStatus:  agent.StatusBlocked,
			wantScore:   0.9,
			wantSummary: "Task blocked due to guardrail violation: unknown.",
			wantTools:   []string{},
		},
	}

	s := NewSummarizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := s.Summarize(task, tt.steps)
			if m.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", m.Status, tt.wantStatus)
			}
			if m.SafetyScore != tt.wantScore {
				t.Errorf("SafetyScore = %v, want %v", m.SafetyScore, tt.wantScore)
			}
			if m.Summary != tt.wantSummary {
				t.Errorf("Summary = %q, want %q", m.Summary, tt.wantSummary)
			}
			if !reflect.DeepEqual(m.ToolsUsed, tt.wantTools) {
				t.Errorf("ToolsUsed = %v, want %v", m.ToolsUsed, tt.wantTools)
			}
			if m.StepCount != len(tt.steps) {
				t.Errorf("StepCount = %d, want %d", m.StepCount, len(tt.steps))
			}
		})
	}
}

func TestMetrics_Map(t *testing.T) {
	m := NewSummarizer().Summarize(agent.Task{ID: "t1"}, []agent.StepResult{
		{Step: 1, ToolUsed: "data_lookup", ToolOutput: agent.Payload{}, LatencyMS: 1.5},
		{Step: 2, ToolUsed: "data_lookup", ToolOutput: agent.Payload{}, LatencyMS: 2.5},
	})
	got := m.Map("t1")

	want := map[string]any{
		MetricTaskID:       "t1",
		MetricStatus:       "completed",
		MetricStepCount:    2,
		MetricBlockedSteps: 0,
		MetricLatencyTotal: 4.0,
		MetricSafetyScore:  1.0,
		MetricSummary:      "Task completed using data_lookup.",
		MetricToolsUsed:    []string{"data_lookup"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Map() = %v, want %v", got, want)
	}
}
