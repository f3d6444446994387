package store

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// FailAction defines how a guardrail match on agent output is handled.
type FailAction string

const (
	// FailActionBlock blocks the output outright.
	FailActionBlock FailAction = "block"

	// FailActionRedact reports that the output requires redaction.
	FailActionRedact FailAction = "redact"
)

// Default field values for policy documents.
const (
	DefaultPolicyName    = "unknown"
	DefaultPolicyVersion = "1.0.0"
)

// PolicyDefinition is one immutable policy document.
// Values returned by the Store must not be modified.
type PolicyDefinition struct {
	Name          string     `yaml:"name" json:"name"`
	Version       string     `yaml:"version" json:"version"`
	AllowedModels []string   `yaml:"allowed_models" json:"allowed_models"`
	Checks        []string   `yaml:"checks" json:"checks"`
	FailAction    FailAction `yaml:"fail_action" json:"fail_action"`
}

// HasCheck reports whether the named check is enabled.
func (p *PolicyDefinition) HasCheck(id string) bool {
	for _, c := range p.Checks {
		if c == id {
			return true
		}
	}
	return false
}

// AllowsModel reports whether model is in the allowed list.
// An empty list places no restriction on models.
func (p *PolicyDefinition) AllowsModel(model string) bool {
	if len(p.AllowedModels) == 0 {
		return true
	}
	for _, m := range p.AllowedModels {
		if m == model {
			return true
		}
	}
	return false
}

// Clone returns a deep copy that callers may modify freely.
func (p *PolicyDefinition) Clone() *PolicyDefinition {
	c := *p
	c.AllowedModels = append([]string{}, p.AllowedModels...)
	c.Checks = append([]string{}, p.Checks...)
	return &c
}

// document mirrors the on-disk layout. Pointer fields distinguish an absent
// key from an explicit empty value.
type document struct {
	Policy *struct {
		Name          *string  `yaml:"name"`
		Version       *string  `yaml:"version"`
		AllowedModels []string `yaml:"allowed_models"`
		Checks        []string `yaml:"checks"`
		FailAction    *string  `yaml:"fail_action"`
	} `yaml:"policy"`
}

// Parse decodes a policy document and applies defaults for missing fields.
// name is used in error messages only.
func Parse(data []byte, name string) (*PolicyDefinition, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, newParseError(name, err)
	}

	// An empty or comment-only file decodes to the zero document.
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, newParseError(name, err)
	}
	if len(root.Content) == 0 {
		return nil, &ParseError{Source: name, Message: "empty policy document"}
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, &ParseError{
			Source:  name,
			Line:    root.Content[0].Line,
			Column:  root.Content[0].Column,
			Message: "policy document must be a mapping",
		}
	}

	p := &PolicyDefinition{
		Name:          DefaultPolicyName,
		Version:       DefaultPolicyVersion,
		AllowedModels: []string{},
		Checks:        []string{},
		FailAction:    FailActionBlock,
	}

	if doc.Policy == nil {
		return p, nil
	}

	if doc.Policy.Name != nil {
		p.Name = *doc.Policy.Name
	}
	if doc.Policy.Version != nil {
		p.Version = *doc.Policy.Version
	}
	if doc.Policy.AllowedModels != nil {
		p.AllowedModels = append([]string{}, doc.Policy.AllowedModels...)
	}
	if doc.Policy.Checks != nil {
		p.Checks = append([]string{}, doc.Policy.Checks...)
	}
	if doc.Policy.FailAction != nil {
		p.FailAction = FailAction(*doc.Policy.FailAction)
	}

	return p, nil
}

// Validate checks the semantic constraints of a parsed definition.
// knownChecks, when non-nil, restricts the check identifiers that may appear.
func Validate(p *PolicyDefinition, knownChecks map[string]bool) error {
	errList := &ErrorList{}

	switch p.FailAction {
	case FailActionBlock, FailActionRedact:
	default:
		errList.Add(&ValidationError{
			Policy:    p.Name,
			FieldPath: "policy.fail_action",
			Message:   fmt.Sprintf("unsupported fail_action %q (want block or redact)", p.FailAction),
		})
	}

	seen := make(map[string]bool, len(p.Checks))
	for i, c := range p.Checks {
		path := fmt.Sprintf("policy.checks[%d]", i)
		if c == "" {
			errList.Add(&ValidationError{Policy: p.Name, FieldPath: path, Message: "check identifier cannot be empty"})
			continue
		}
		if seen[c] {
			errList.Add(&ValidationError{Policy: p.Name, FieldPath: path, Message: fmt.Sprintf("duplicate check %q", c)})
		}
		seen[c] = true
		if knownChecks != nil && !knownChecks[c] {
			errList.Add(&ValidationError{Policy: p.Name, FieldPath: path, Message: fmt.Sprintf("unknown check %q", c)})
		}
	}

	return errList.ToError()
}

// Snapshot is the unit swapped on reload.
type Snapshot struct {
	// Policy is the active definition.
	Policy *PolicyDefinition

	// Fingerprint is a short SHA-256 of the raw document.
	Fingerprint string

	// Source names the backing document.
	Source string

	// LoadedAt is when the snapshot became active.
	LoadedAt time.Time
}
