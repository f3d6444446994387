package tools

import (
	"context"

	"mercator-hq/overwatch/pkg/agent"
)

// Tool is the capability the orchestrator calls into for each tool step.
type Tool interface {
	// Name returns the registry identifier of the tool.
	Name() string

	// ValidateInput fails if a required input field is absent.
	ValidateInput(payload agent.Payload) error

	// Run executes the tool with validated input.
	Run(ctx context.Context, payload agent.Payload) (agent.Payload, error)

	// ValidateOutput fails if a required output field is absent.
	ValidateOutput(payload agent.Payload) error
}

// Base implements the descriptive and validation parts of Tool.
type Base struct {
	ToolName        string
	ToolDescription string
	Input           *Validator
	Output          *Validator
}

// NewBase creates a Base with compiled input and output schemas.
func NewBase(name, description string, input, output Schema) (Base, error) {
	in, err := Compile(input)
	if err != nil {
		return Base{}, err
	}
	out, err := Compile(output)
	if err != nil {
		return Base{}, err
	}
	return Base{
		ToolName:        name,
		ToolDescription: description,
		Input:           in,
		Output:          out,
	}, nil
}

// Name returns the tool name.
func (b Base) Name() string {
	return b.ToolName
}

// Description returns the human-readable description.
func (b Base) Description() string {
	return b.ToolDescription
}

// ValidateInput checks payload against the input schema.
func (b Base) ValidateInput(payload agent.Payload) error {
	if b.Input == nil {
		return nil
	}
	return b.Input.Validate(b.ToolName, "input", payload)
}

// ValidateOutput checks payload against the output schema.
func (b Base) ValidateOutput(payload agent.Payload) error {
	if b.Output == nil {
		return nil
	}
	return b.Output.Validate(b.ToolName, "output", payload)
}
