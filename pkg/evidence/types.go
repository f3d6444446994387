package evidence

import (
	"context"
	"io"
	"time"
)

// Audit-only statuses. Completed tasks use the agent statuses.
const (
	// StatusRejected marks a task denied by pre-screening.
	StatusRejected = "rejected"

	// StatusError marks a task aborted by a tool failure.
	StatusError = "error"
)

// Step entry events.
const (
	// EventPlanner is a reasoning-only entry written when the planner
	// terminates the loop.
	EventPlanner = "planner"

	// EventStep is an executed or blocked step.
	EventStep = "step"
)

// AuditRecord is the durable trace of one task.
type AuditRecord struct {
	// Identity
	ID     string `json:"id"`      // UUID v4
	TaskID string `json:"task_id"` // Task identifier

	// Task metadata
	Role        string         `json:"role"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`

	// Timestamps
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Policy active when the task started
	Policy PolicyRef `json:"policy"`

	// Trace in execution order
	Steps []StepEntry `json:"steps"`

	// Outcome
	Status      string         `json:"status"`
	Summary     string         `json:"summary,omitempty"`
	SafetyScore float64        `json:"safety_score"`
	Metrics     map[string]any `json:"metrics,omitempty"`

	// Error info for rejected or aborted tasks
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`

	// Chain link set by hash-chaining sinks
	PrevHash string `json:"prev_hash,omitempty"`
}

// StepEntry is one line of the step trace.
type StepEntry struct {
	Step       int            `json:"step"`
	Event      string         `json:"event"`
	Rationale  string         `json:"rationale"`
	Tool       string         `json:"tool,omitempty"`
	ToolInput  map[string]any `json:"tool_input,omitempty"`
	ToolOutput map[string]any `json:"tool_output,omitempty"`
	LatencyMS  float64        `json:"latency_ms,omitempty"`
	Blocked    bool           `json:"blocked,omitempty"`
	Violation  string         `json:"violation,omitempty"`
}

// PolicyRef identifies a policy snapshot.
type PolicyRef struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Clone returns a copy whose slices and top-level maps are not shared.
func (r *AuditRecord) Clone() *AuditRecord {
	c := *r
	c.Steps = append([]StepEntry(nil), r.Steps...)
	c.Parameters = cloneMap(r.Parameters)
	c.Metrics = cloneMap(r.Metrics)
	return &c
}

// ExecutedSteps returns the step entries, excluding planner-only entries.
func (r *AuditRecord) ExecutedSteps() []StepEntry {
	var out []StepEntry
	for _, s := range r.Steps {
		if s.Event == EventStep {
			out = append(out, s)
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Query defines filter parameters for reading audit records.
type Query struct {
	// Time range on StartedAt
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	TaskID string `json:"task_id,omitempty"`
	Role   string `json:"role,omitempty"`
	Status string `json:"status,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`  // Max records to return
	Offset int `json:"offset,omitempty"` // Skip N records

	// Sorting by StartedAt
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Matches reports whether record passes the query filters.
func (q *Query) Matches(record *AuditRecord) bool {
	if q == nil {
		return true
	}
	if q.TaskID != "" && record.TaskID != q.TaskID {
		return false
	}
	if q.Role != "" && record.Role != q.Role {
		return false
	}
	if q.Status != "" && record.Status != q.Status {
		return false
	}
	if q.StartTime != nil && record.StartedAt.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && record.StartedAt.After(*q.EndTime) {
		return false
	}
	return true
}

// Sink persists finished audit records. Implementations must serialize
// concurrent Append calls.
type Sink interface {
	// Append writes one finished record.
	Append(ctx context.Context, record *AuditRecord) error

	// Close releases any resources held by the sink.
	Close() error
}

// Reader reads persisted audit records.
type Reader interface {
	// Query returns the records matching q.
	Query(ctx context.Context, q *Query) ([]*AuditRecord, error)
}

// Exporter writes audit records in some output format.
type Exporter interface {
	// Export writes records to w.
	Export(ctx context.Context, records []*AuditRecord, w io.Writer) error
}
