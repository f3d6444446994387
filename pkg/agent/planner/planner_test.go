package planner

import (
	"reflect"
	"testing"

	"mercator-hq/overwatch/pkg/agent"
)

func TestPlanner_Plan(t *testing.T) {
	p := New()

	tests := []struct {
		name      string
		task      agent.Task
		history   []agent.StepResult
		wantTool  string
		wantInput agent.Payload
		wantTerm  bool
	}{
		{
			name:     "previous blocked terminates",
			task:     agent.Task{Description: "lookup alice", Parameters: map[string]any{"tool": "data_lookup"}},
			history:  []agent.StepResult{{Step: 1, Blocked: true, Violation: "pii"}},
			wantTerm: true,
		},
		{
			name:     "previous complete terminates",
			task:     agent.Task{Description: "lookup alice"},
			history:  []agent.StepResult{{Step: 1, ToolUsed: "data_lookup", ToolOutput: agent.Payload{"complete": true}}},
			wantTerm: true,
		},
		{
			name:      "explicit tool uses full parameters",
			task:      agent.Task{Description: "fetch", Parameters: map[string]any{"tool": "data_lookup", "query": "alice"}},
			wantTool:  "data_lookup",
			wantInput: agent.Payload{"tool": "data_lookup", "query": "alice"},
		},
		{
			name:      "explicit tool wins over lookup keyword",
			task:      agent.Task{Description: "Lookup things", Parameters: map[string]any{"tool": "exporter"}},
			wantTool:  "exporter",
			wantInput: agent.Payload{"tool": "exporter"},
		},
		{
			name:      "lookup keyword",
			task:      agent.Task{Description: "Lookup user-1 account status"},
			wantTool:  "data_lookup",
			wantInput: agent.Payload{"query": "Lookup user-1 account status"},
		},
		{
			name:      "incomplete previous step continues",
			task:      agent.Task{Description: "lookup bob"},
			history:   []agent.StepResult{{Step: 1, ToolOutput: agent.Payload{"complete": false}}},
			wantTool:  "data_lookup",
			wantInput: agent.Payload{"query": "lookup bob"},
		},
		{
			name:     "no action",
			task:     agent.Task{Description: "say hello"},
			wantTerm: true,
		},
		{
			name:     "non-string tool parameter ignored",
			task:     agent.Task{Description: "say hello", Parameters: map[string]any{"tool": 42}},
			wantTerm: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Plan(tt.task, tt.history)
			if got.Terminate != tt.wantTerm {
				t.Fatalf("Terminate = %v, want %v (plan %+v)", got.Terminate, tt.wantTerm, got)
			}
			if got.Rationale == "" {
				t.Error("Rationale is empty")
			}
			if got.ToolName != tt.wantTool {
				t.Errorf("ToolName = %q, want %q", got.ToolName, tt.wantTool)
			}
			if tt.wantInput != nil && !reflect.DeepEqual(got.ToolInput, tt.wantInput) {
				t.Errorf("ToolInput = %v, want %v", got.ToolInput, tt.wantInput)
			}
		})
	}
}

func TestPlanner_Deterministic(t *testing.T) {
	p := New()
	task := agent.Task{Description: "Lookup user-2", Parameters: map[string]any{"x": 1}}
	history := []agent.StepResult{{Step: 1, ToolOutput: agent.Payload{"complete": false}}}

	first := p.Plan(task, history)
	for i := 0; i < 10; i++ {
		if got := p.Plan(task, history); !reflect.DeepEqual(got, first) {
			t.Fatalf("Plan() run %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestPlanner_InputIsCopy(t *testing.T) {
	params := map[string]any{"tool": "data_lookup", "query": "alice"}
	plan := New().Plan(agent.Task{Parameters: params}, nil)

	plan.ToolInput["query"] = "mallory"
	if params["query"] != "alice" {
		t.Error("Plan() input aliases task parameters")
	}
}

func TestPlanner_Options(t *testing.T) {
	p := New(WithLookupTool("crm_search"), WithLookupKeywords("find"))

	got := p.Plan(agent.Task{Description: "Find Alice"}, nil)
	if got.ToolName != "crm_search" {
		t.Errorf("ToolName = %q, want crm_search", got.ToolName)
	}
	if got := p.Plan(agent.Task{Description: "lookup Alice"}, nil); !got.Terminate {
		t.Errorf("default keyword should not match after override, got %+v", got)
	}
}

func TestPlanner_RuleOrder(t *testing.T) {
	want := []string{"previous_blocked", "previous_complete", "explicit_tool", "lookup_intent", "no_action"}
	if got := New().Rules(); !reflect.DeepEqual(got, want) {
		t.Errorf("Rules() = %v, want %v", got, want)
	}

	custom := NewWithRules(Rule{
		Name: "always",
		Apply: func(agent.Task, []agent.StepResult) (Plan, bool) {
			return Plan{Rationale: "custom", ToolName: "noop"}, true
		},
	})
	if got := custom.Plan(agent.Task{}, nil); got.ToolName != "noop" {
		t.Errorf("custom Plan() = %+v", got)
	}

	empty := NewWithRules()
	if got := empty.Plan(agent.Task{Description: "lookup alice"}, nil); !got.Terminate {
		t.Errorf("empty table Plan() = %+v, want terminate", got)
	}
}

func TestPlanner_EachRule(t *testing.T) {
	blocked := []agent.StepResult{{Step: 1, Blocked: true, Violation: "pii"}}
	done := []agent.StepResult{{Step: 1, ToolUsed: "data_lookup", ToolOutput: agent.Payload{"complete": true}}}

	tests := []struct {
		rule      string
		task      agent.Task
		history   []agent.StepResult
		wantApply bool
		wantTool  string
	}{
		{rule: "previous_blocked", history: blocked, wantApply: true},
		{rule: "previous_blocked", history: done},
		{rule: "previous_complete", history: done, wantApply: true},
		{rule: "previous_complete", history: blocked},
		{rule: "explicit_tool", task: agent.Task{Parameters: map[string]any{"tool": "echo"}}, wantApply: true, wantTool: "echo"},
		{rule: "explicit_tool", task: agent.Task{Description: "lookup alice"}},
		{rule: "lookup_intent", task: agent.Task{Description: "LOOKUP alice"}, wantApply: true, wantTool: DefaultLookupTool},
		{rule: "lookup_intent", task: agent.Task{Description: "say hi"}},
		{rule: "no_action", task: agent.Task{Description: "say hi"}, wantApply: true},
		{rule: "no_action", history: blocked, wantApply: true},
	}

	rules := make(map[string]Rule)
	for _, r := range New().rules {
		rules[r.Name] = r
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			plan, ok := rules[tt.rule].Apply(tt.task, tt.history)
			if ok != tt.wantApply {
				t.Fatalf("applies = %v, want %v", ok, tt.wantApply)
			}
			if !ok {
				return
			}
			if plan.ToolName != tt.wantTool {
				t.Errorf("ToolName = %q, want %q", plan.ToolName, tt.wantTool)
			}
			if plan.Terminate != (tt.wantTool == "") {
				t.Errorf("Terminate = %v for tool %q", plan.Terminate, plan.ToolName)
			}
		})
	}
}
