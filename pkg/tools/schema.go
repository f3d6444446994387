package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"mercator-hq/overwatch/pkg/agent"
)

// Schema maps a field name to whether the field is required.
type Schema map[string]bool

// Required returns the required field names in sorted order.
func (s Schema) Required() []string {
	fields := make([]string, 0, len(s))
	for name, required := range s {
		if required {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}

// Validator enforces a compiled Schema.
type Validator struct {
	schema   Schema
	compiled *jsonschema.Schema
}

// Compile turns a Schema into a JSON Schema object document and compiles it.
func Compile(s Schema) (*Validator, error) {
	doc := map[string]any{
		"type":     "object",
		"required": s.Required(),
	}

	// The compiler expects values as produced by encoding/json.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	schemaObj, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaObj); err != nil {
		return nil, fmt.Errorf("schema compile error: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("schema compile error: %w", err)
	}

	return &Validator{schema: s, compiled: compiled}, nil
}

// Validate checks payload and returns *agent.ToolValidationError listing the
// missing required fields.
func (v *Validator) Validate(tool, stage string, payload agent.Payload) error {
	instance, err := normalize(payload)
	if err != nil {
		return &agent.ToolValidationError{Tool: tool, Stage: stage, Cause: err}
	}

	if err := v.compiled.Validate(instance); err != nil {
		return &agent.ToolValidationError{
			Tool:    tool,
			Stage:   stage,
			Missing: v.missing(payload),
			Cause:   err,
		}
	}
	return nil
}

func (v *Validator) missing(payload agent.Payload) []string {
	var fields []string
	for _, name := range v.schema.Required() {
		if _, ok := payload[name]; !ok {
			fields = append(fields, name)
		}
	}
	return fields
}

// normalize round-trips payload through encoding/json so nested Go values
// (typed slices, structs, ints) become the generic forms the validator accepts.
func normalize(payload agent.Payload) (any, error) {
	if payload == nil {
		payload = agent.Payload{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("payload is not JSON-encodable: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}
