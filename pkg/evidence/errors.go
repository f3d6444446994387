package evidence

import (
	"errors"
	"fmt"
)

// Recorder lifecycle errors.
var (
	// ErrTaskNotOpen is returned when a step or outcome arrives for a task
	// whose record was never started or is already finished.
	ErrTaskNotOpen = errors.New("no open audit record for task")

	// ErrTaskAlreadyOpen is returned when StartTask is called twice for one task.
	ErrTaskAlreadyOpen = errors.New("audit record already open for task")
)

// StorageError is returned by the sinks and readers of the audit log.
type StorageError struct {
	Backend   string // "jsonl", "memory" or "sqlite"
	Operation string // "open", "append", "query", "verify", "sql", ...
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("audit %s %s failed: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// IsStorageError reports whether err came from an audit log backend.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// QueryError is returned when audit filters are invalid, for example an
// unknown status or a time window that ends before it starts.
type QueryError struct {
	Query *Query
	Cause error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid audit query: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(query *Query, cause error) *QueryError {
	return &QueryError{
		Query: query,
		Cause: cause,
	}
}

// RecorderError ties a lifecycle or persistence failure to the task whose
// record it affected.
type RecorderError struct {
	TaskID string
	Cause  error
}

// Error implements the error interface.
func (e *RecorderError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("audit record for task %s: %v", e.TaskID, e.Cause)
	}
	return fmt.Sprintf("audit record: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RecorderError) Unwrap() error {
	return e.Cause
}

// NewRecorderError creates a new RecorderError.
func NewRecorderError(taskID string, cause error) *RecorderError {
	return &RecorderError{
		TaskID: taskID,
		Cause:  cause,
	}
}

// ExportError is returned when records cannot be rendered as JSON or CSV.
type ExportError struct {
	Format      string
	RecordCount int
	Cause       error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export of %d audit records as %s: %v", e.RecordCount, e.Format, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{
		Format:      format,
		RecordCount: recordCount,
		Cause:       cause,
	}
}
