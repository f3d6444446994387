// Package agent defines the data model shared by the task runner: tasks
// submitted by callers, the per-step results produced by the reasoning loop,
// and the structured response returned when a task finishes.
//
// # Lifecycle
//
//	Task -> pre-screen -> [plan -> screen -> execute -> record]* -> AgentResponse
//
// A Task is immutable once created. StepResults are appended in execution
// order and never modified afterwards; their Step values form the contiguous
// sequence 1..k within a single task.
//
// # Terminal Status
//
// A finished task reports one of three statuses:
//   - completed: the loop ended on a planner or tool termination signal
//   - blocked: at least one step was rejected by the guardrails
//   - step_limit: the step budget ran out before any termination signal
//
// Tasks rejected before the first step never produce an AgentResponse; the
// caller receives a *TaskRejectedError instead.
package agent
