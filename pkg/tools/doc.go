// Package tools defines the Tool capability consumed by the orchestrator and
// the registry that maps tool names to implementations.
//
// A tool validates its input, runs, and validates its output. Schemas are a
// mapping from field name to a required flag:
//
//	tools.Schema{"query": true}
//
// Schemas are compiled once into JSON Schema documents and enforced with
// github.com/santhosh-tekuri/jsonschema/v6. A payload missing a required
// field fails with *agent.ToolValidationError.
//
// Implementations usually embed Base, which provides Name, Description and
// both validation methods, and only implement Run:
//
//	type Echo struct{ tools.Base }
//
//	func (e *Echo) Run(ctx context.Context, in agent.Payload) (agent.Payload, error) {
//	    return agent.Payload{"echo": in["text"], "complete": true}, nil
//	}
package tools
