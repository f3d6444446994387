package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/overwatch/pkg/agent"
	"mercator-hq/overwatch/pkg/evidence"
)

// Config contains configuration for the audit recorder.
type Config struct {
	// HistorySize is how many finished records are kept in memory.
	// Default: 100
	HistorySize int

	// WriteTimeout bounds a single sink write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// MaxFieldLength truncates the stored task description.
	// Zero disables truncation.
	MaxFieldLength int

	// Redact, when set, is applied to the task description and to string
	// values of tool payloads before a record is persisted.
	Redact func(string) string
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		HistorySize:  100,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder builds audit records. It is safe for concurrent use.
type Recorder struct {
	sink   evidence.Sink
	config *Config
	logger *slog.Logger

	mu      sync.Mutex
	open    map[string]*evidence.AuditRecord
	history []*evidence.AuditRecord
}

// New creates a recorder. A nil sink keeps records in memory only.
func New(sink evidence.Sink, config *Config, logger *slog.Logger) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultConfig().HistorySize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if logger == nil {
		logger = slog.Default().With("component", "evidence.recorder")
	}

	return &Recorder{
		sink:   sink,
		config: config,
		logger: logger,
		open:   make(map[string]*evidence.AuditRecord),
	}
}

// StartTask opens the record for task.
func (r *Recorder) StartTask(task agent.Task, policy evidence.PolicyRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.open[task.ID]; exists {
		return evidence.NewRecorderError(task.ID, evidence.ErrTaskAlreadyOpen)
	}

	description := task.Description
	if r.config.MaxFieldLength > 0 {
		description = TruncateString(description, r.config.MaxFieldLength)
	}

	r.open[task.ID] = &evidence.AuditRecord{
		ID:          uuid.New().String(),
		TaskID:      task.ID,
		Role:        task.Role,
		Description: description,
		Parameters:  copyPayload(task.Parameters),
		StartedAt:   time.Now().UTC(),
		Policy:      policy,
		Steps:       []evidence.StepEntry{},
	}

	r.logger.Debug("audit record opened", "task_id", task.ID, "policy_version", policy.Version)
	return nil
}

// LogReasoning appends a reasoning-only entry.
func (r *Recorder) LogReasoning(taskID string, step int, rationale string) error {
	return r.appendEntry(taskID, evidence.StepEntry{
		Step:      step,
		Event:     evidence.EventPlanner,
		Rationale: rationale,
	})
}

// LogStep appends an executed or blocked step.
func (r *Recorder) LogStep(taskID string, result agent.StepResult) error {
	return r.appendEntry(taskID, evidence.StepEntry{
		Step:       result.Step,
		Event:      evidence.EventStep,
		Rationale:  result.Rationale,
		Tool:       result.ToolUsed,
		ToolInput:  copyPayload(result.ToolInput),
		ToolOutput: copyPayload(result.ToolOutput),
		LatencyMS:  result.LatencyMS,
		Blocked:    result.Blocked,
		Violation:  result.Violation,
	})
}

func (r *Recorder) appendEntry(taskID string, entry evidence.StepEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.open[taskID]
	if !ok {
		r.logger.Warn("audit entry for unknown task dropped", "task_id", taskID, "step", entry.Step)
		return evidence.NewRecorderError(taskID, evidence.ErrTaskNotOpen)
	}
	rec.Steps = append(rec.Steps, entry)
	return nil
}

// EndTask closes the record for resp.TaskID with the final outcome and
// persists it.
func (r *Recorder) EndTask(ctx context.Context, resp *agent.AgentResponse) error {
	if resp == nil {
		return evidence.NewRecorderError("", fmt.Errorf("response cannot be nil"))
	}

	rec, err := r.close(resp.TaskID, func(rec *evidence.AuditRecord) {
		rec.CompletedAt = resp.CompletedAt
		rec.Status = string(resp.Status)
		rec.Summary = resp.Summary
		rec.SafetyScore = resp.SafetyScore
		rec.Metrics = copyPayload(resp.Metrics)
	})
	if err != nil {
		return err
	}
	return r.persist(ctx, rec)
}

// Abort closes the record for taskID with an audit-only status and the
// error that ended the task, then persists it.
func (r *Recorder) Abort(ctx context.Context, taskID, status string, cause error) error {
	rec, err := r.close(taskID, func(rec *evidence.AuditRecord) {
		rec.CompletedAt = time.Now().UTC()
		rec.Status = status
		rec.SafetyScore = 0
		if cause != nil {
			rec.Error = cause.Error()
			rec.ErrorType = classifyError(cause)
		}
	})
	if err != nil {
		return err
	}
	return r.persist(ctx, rec)
}

// close removes the open record, applies finish, and adds it to history.
// Once closed, a record cannot be finished again.
func (r *Recorder) close(taskID string, finish func(*evidence.AuditRecord)) (*evidence.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.open[taskID]
	if !ok {
		return nil, evidence.NewRecorderError(taskID, evidence.ErrTaskNotOpen)
	}
	delete(r.open, taskID)

	finish(rec)
	if r.config.Redact != nil {
		r.redact(rec)
	}

	r.history = append(r.history, rec)
	if over := len(r.history) - r.config.HistorySize; over > 0 {
		r.history = append([]*evidence.AuditRecord(nil), r.history[over:]...)
	}
	return rec.Clone(), nil
}

func (r *Recorder) persist(ctx context.Context, rec *evidence.AuditRecord) error {
	if r.sink == nil {
		return nil
	}

	// The record is written even when the task's context was cancelled;
	// only WriteTimeout bounds the write.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.sink.Append(ctx, rec); err != nil {
		r.logger.Error("failed to persist audit record",
			"task_id", rec.TaskID,
			"record_id", rec.ID,
			"error", err,
		)
		return evidence.NewRecorderError(rec.TaskID, err)
	}

	r.logger.Info("audit record persisted",
		"task_id", rec.TaskID,
		"record_id", rec.ID,
		"status", rec.Status,
		"steps", len(rec.Steps),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// LatestRecord returns a copy of the most recently finished record, or nil.
func (r *Recorder) LatestRecord() *evidence.AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.history) == 0 {
		return nil
	}
	return r.history[len(r.history)-1].Clone()
}

// Get returns a copy of the record for taskID, open or finished.
func (r *Recorder) Get(taskID string) (*evidence.AuditRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.open[taskID]; ok {
		return rec.Clone(), true
	}
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].TaskID == taskID {
			return r.history[i].Clone(), true
		}
	}
	return nil, false
}

// OpenCount returns the number of tasks with open records.
func (r *Recorder) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}

// Close closes the sink.
func (r *Recorder) Close() error {
	r.mu.Lock()
	open := len(r.open)
	r.mu.Unlock()

	if open > 0 {
		r.logger.Warn("closing recorder with open audit records", "open", open)
	}
	if r.sink == nil {
		return nil
	}
	return r.sink.Close()
}

func (r *Recorder) redact(rec *evidence.AuditRecord) {
	rec.Description = r.config.Redact(rec.Description)
	rec.Parameters = redactPayload(rec.Parameters, r.config.Redact)
	for i := range rec.Steps {
		rec.Steps[i].ToolInput = redactPayload(rec.Steps[i].ToolInput, r.config.Redact)
		rec.Steps[i].ToolOutput = redactPayload(rec.Steps[i].ToolOutput, r.config.Redact)
	}
}

// classifyError maps a task-ending error to a short type label.
func classifyError(err error) string {
	var (
		rejected   *agent.TaskRejectedError
		validation *agent.ToolValidationError
		execution  *agent.ToolExecutionError
	)
	switch {
	case errors.As(err, &rejected):
		return "task_rejected"
	case errors.As(err, &validation):
		return "tool_validation_failed"
	case errors.As(err, &execution):
		return "tool_execution_failed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
