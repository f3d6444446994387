// Package planner proposes the next agent action from a deterministic,
// ordered rule table.
//
// Plan is a pure function of the task and the step history: the same inputs
// always produce the same plan, which keeps audit trails reproducible.
package planner

import (
	"strings"

	"mercator-hq/overwatch/pkg/agent"
)

// DefaultLookupTool is the tool proposed for lookup-intent descriptions.
const DefaultLookupTool = "data_lookup"

// DefaultLookupKeywords trigger the lookup rule.
var DefaultLookupKeywords = []string{"lookup"}

// Plan is the next action proposed by the planner.
type Plan struct {
	Rationale string
	ToolName  string
	ToolInput agent.Payload
	Terminate bool
}

// Rule inspects the task and history and returns a plan when it applies.
type Rule struct {
	Name  string
	Apply func(task agent.Task, history []agent.StepResult) (Plan, bool)
}

// Planner evaluates rules top to bottom; the first applicable rule wins.
type Planner struct {
	rules []Rule
}

// Option configures a Planner.
type Option func(*config)

type config struct {
	lookupTool     string
	lookupKeywords []string
}

// WithLookupTool changes the tool proposed for lookup intents.
func WithLookupTool(name string) Option {
	return func(c *config) { c.lookupTool = name }
}

// WithLookupKeywords changes the keywords that signal lookup intent.
// Matching is case-insensitive.
func WithLookupKeywords(keywords ...string) Option {
	return func(c *config) { c.lookupKeywords = keywords }
}

// New creates a planner with the default rule table.
func New(opts ...Option) *Planner {
	c := &config{
		lookupTool:     DefaultLookupTool,
		lookupKeywords: DefaultLookupKeywords,
	}
	for _, opt := range opts {
		opt(c)
	}

	return &Planner{rules: []Rule{
		{Name: "previous_blocked", Apply: previousBlocked},
		{Name: "previous_complete", Apply: previousComplete},
		{Name: "explicit_tool", Apply: explicitTool},
		{Name: "lookup_intent", Apply: lookupIntent(c.lookupTool, c.lookupKeywords)},
		{Name: "no_action", Apply: noAction},
	}}
}

// NewWithRules creates a planner with a custom rule table.
func NewWithRules(rules ...Rule) *Planner {
	return &Planner{rules: append([]Rule{}, rules...)}
}

// Rules returns the rule names in evaluation order.
func (p *Planner) Rules() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name
	}
	return names
}

// Plan returns the next action. A custom table without a catch-all rule
// terminates when nothing applies.
func (p *Planner) Plan(task agent.Task, history []agent.StepResult) Plan {
	for _, r := range p.rules {
		if plan, ok := r.Apply(task, history); ok {
			return plan
		}
	}
	plan, _ := noAction(task, history)
	return plan
}

func previousBlocked(_ agent.Task, history []agent.StepResult) (Plan, bool) {
	if len(history) == 0 || !history[len(history)-1].Blocked {
		return Plan{}, false
	}
	return Plan{
		Rationale: "Guardrail blocked previous action; terminating.",
		Terminate: true,
	}, true
}

func previousComplete(_ agent.Task, history []agent.StepResult) (Plan, bool) {
	if len(history) == 0 || !history[len(history)-1].Complete() {
		return Plan{}, false
	}
	return Plan{
		Rationale: "Tool reported completion; terminating.",
		Terminate: true,
	}, true
}

func explicitTool(task agent.Task, _ []agent.StepResult) (Plan, bool) {
	name, ok := task.RequestedTool()
	if !ok {
		return Plan{}, false
	}
	input := make(agent.Payload, len(task.Parameters))
	for k, v := range task.Parameters {
		input[k] = v
	}
	return Plan{
		Rationale: "Task parameters request tool " + name + ".",
		ToolName:  name,
		ToolInput: input,
	}, true
}

func lookupIntent(tool string, keywords []string) func(agent.Task, []agent.StepResult) (Plan, bool) {
	return func(task agent.Task, _ []agent.StepResult) (Plan, bool) {
		desc := strings.ToLower(task.Description)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(desc, strings.ToLower(kw)) {
				return Plan{
					Rationale: "Task requests a data lookup.",
					ToolName:  tool,
					ToolInput: agent.Payload{"query": task.Description},
				}, true
			}
		}
		return Plan{}, false
	}
}

// noAction always applies and ends the task.
func noAction(_ agent.Task, _ []agent.StepResult) (Plan, bool) {
	return Plan{
		Rationale: "No actionable tool identified; ending task.",
		Terminate: true,
	}, true
}
