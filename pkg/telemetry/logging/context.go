package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// TaskIDKey is the context key for task IDs.
	TaskIDKey contextKey = "task_id"

	// RoleKey is the context key for caller roles.
	RoleKey contextKey = "role"

	// StepKey is the context key for the current step number.
	StepKey contextKey = "step"

	// WorkerKey is the context key for the serve worker index.
	WorkerKey contextKey = "worker"
)

// WithTaskID adds a task ID to the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// GetTaskID retrieves the task ID from the context.
func GetTaskID(ctx context.Context) string {
	if id, ok := ctx.Value(TaskIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRole adds a caller role to the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

// GetRole retrieves the caller role from the context.
func GetRole(ctx context.Context) string {
	if role, ok := ctx.Value(RoleKey).(string); ok {
		return role
	}
	return ""
}

// WithStep adds the current step number to the context.
func WithStep(ctx context.Context, step int) context.Context {
	return context.WithValue(ctx, StepKey, step)
}

// GetStep retrieves the step number from the context, or 0.
func GetStep(ctx context.Context) int {
	if step, ok := ctx.Value(StepKey).(int); ok {
		return step
	}
	return 0
}

// WithWorker adds a worker index to the context.
func WithWorker(ctx context.Context, worker int) context.Context {
	return context.WithValue(ctx, WorkerKey, worker)
}

// GetWorker retrieves the worker index from the context, or -1.
func GetWorker(ctx context.Context) int {
	if w, ok := ctx.Value(WorkerKey).(int); ok {
		return w
	}
	return -1
}

// extractContextFields returns the context values as slog key/value pairs.
func extractContextFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	var fields []any
	if id := GetTaskID(ctx); id != "" {
		fields = append(fields, string(TaskIDKey), id)
	}
	if role := GetRole(ctx); role != "" {
		fields = append(fields, string(RoleKey), role)
	}
	if step := GetStep(ctx); step > 0 {
		fields = append(fields, string(StepKey), step)
	}
	if w := GetWorker(ctx); w >= 0 {
		fields = append(fields, string(WorkerKey), w)
	}
	return fields
}
