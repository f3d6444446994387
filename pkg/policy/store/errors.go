package store

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// PolicyLoadError is returned when a reload fails. The previously active
// snapshot remains in effect.
type PolicyLoadError struct {
	// Source names the backing document.
	Source string

	// Message describes the failure.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *PolicyLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load policy %q: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load policy %q: %s", e.Source, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *PolicyLoadError) Unwrap() error {
	return e.Cause
}

// ParseError represents a malformed policy document.
type ParseError struct {
	Source  string
	Line    int
	Column  int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %q at line %d, column %d: %s", e.Source, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %q at line %d: %s", e.Source, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %q: %s", e.Source, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

func newParseError(source string, err error) *ParseError {
	pe := &ParseError{Source: source, Message: err.Error(), Cause: err}
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		pe.Message = strings.Join(typeErr.Errors, "; ")
	}
	return pe
}

// ValidationError represents a semantically invalid policy document.
type ValidationError struct {
	Policy    string
	FieldPath string
	Message   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := []string{"validation error"}
	if e.Policy != "" {
		parts = append(parts, fmt.Sprintf("in policy %q", e.Policy))
	}
	if e.FieldPath != "" {
		parts = append(parts, fmt.Sprintf("at %s", e.FieldPath))
	}
	parts = append(parts, e.Message)
	return strings.Join(parts, " ")
}

// ErrorList collects several validation errors.
type ErrorList struct {
	Errors []error
}

// Error implements the error interface.
func (e *ErrorList) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %v\n", i+1, err))
	}
	return sb.String()
}

// Unwrap returns the collected errors for errors.Is/As.
func (e *ErrorList) Unwrap() []error {
	return e.Errors
}

// Add adds an error to the list.
func (e *ErrorList) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// ToError returns nil, the single error, or the list itself.
func (e *ErrorList) ToError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	if len(e.Errors) == 1 {
		return e.Errors[0]
	}
	return e
}
