// Package recorder builds one audit record per task and persists it exactly
// once when the task ends.
//
// The orchestrator drives the recorder through a task's lifecycle:
//
//	rec.StartTask(task, policyRef)
//	rec.LogStep(task.ID, step)          // for each executed or blocked step
//	rec.LogReasoning(task.ID, n, why)   // when the planner terminates
//	rec.EndTask(ctx, response)          // normal completion
//	rec.Abort(ctx, task.ID, status, err) // rejection or tool failure
//
// Open records are keyed by task ID, so concurrent tasks never share state.
// Finished records are handed to an evidence.Sink and kept in a bounded
// in-memory history for LatestRecord and Get.
package recorder
