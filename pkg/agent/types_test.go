package agent

import (
	"testing"
	"time"
)

func TestNewTask(t *testing.T) {
	params := map[string]any{"tool": "data_lookup"}
	task := NewTask("lookup alice", "analyst", params)

	if task.ID == "" {
		t.Error("ID is empty")
	}
	if task.CreatedAt.IsZero() || task.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt = %v, want non-zero UTC", task.CreatedAt)
	}

	params["tool"] = "other"
	if got, _ := task.RequestedTool(); got != "data_lookup" {
		t.Errorf("RequestedTool() = %q, parameters were not copied", got)
	}

	if other := NewTask("x", "y", nil); other.ID == task.ID {
		t.Error("task IDs should be unique")
	}
}

func TestTask_WithDefaults(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	kept := Task{ID: "task-001", CreatedAt: created}.WithDefaults()
	if kept.ID != "task-001" || !kept.CreatedAt.Equal(created) {
		t.Errorf("WithDefaults() changed existing fields: %+v", kept)
	}
	if kept.Parameters == nil {
		t.Error("WithDefaults() should initialise Parameters")
	}

	filled := Task{}.WithDefaults()
	if filled.ID == "" || filled.CreatedAt.IsZero() {
		t.Errorf("WithDefaults() = %+v, want ID and CreatedAt", filled)
	}
}

func TestTask_RequestedTool(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
		wantOK bool
	}{
		{name: "nil params"},
		{name: "string tool", params: map[string]any{"tool": "data_lookup"}, want: "data_lookup", wantOK: true},
		{name: "empty tool", params: map[string]any{"tool": ""}},
		{name: "non-string tool", params: map[string]any{"tool": 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Task{Parameters: tt.params}.RequestedTool()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("RequestedTool() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStepResult_Complete(t *testing.T) {
	tests := []struct {
		out  Payload
		want bool
	}{
		{nil, false},
		{Payload{"complete": true}, true},
		{Payload{"complete": false}, false},
		{Payload{"complete": "yes"}, false},
	}
	for _, tt := range tests {
		if got := (StepResult{ToolOutput: tt.out}).Complete(); got != tt.want {
			t.Errorf("Complete(%v) = %v, want %v", tt.out, got, tt.want)
		}
	}
}

func TestAgentResponse_BlockedCount(t *testing.T) {
	r := &AgentResponse{Steps: []StepResult{{Step: 1}, {Step: 2, Blocked: true}}}
	if got := r.BlockedCount(); got != 1 {
		t.Errorf("BlockedCount() = %d, want 1", got)
	}
}

func TestErrors(t *testing.T) {
	err := error(&TaskRejectedError{TaskID: "t1", Check: "pii"})
	if !IsTaskRejected(err) {
		t.Error("IsTaskRejected() = false")
	}
	if got, want := err.Error(), `task "t1" rejected due to pii policy`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if IsTaskRejected(ErrUnknownTool) {
		t.Error("IsTaskRejected(ErrUnknownTool) = true")
	}

	in := &ToolValidationError{Tool: "x", Stage: "input", Missing: []string{"query"}}
	out := &ToolValidationError{Tool: "x", Stage: "output", Missing: []string{"results"}}
	if in.Error() == out.Error() {
		t.Error("input and output validation errors should differ")
	}
}
