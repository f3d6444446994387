// Package evidence defines the audit trail produced for every agent task.
//
// # Audit Records
//
// One AuditRecord is built per task. It carries the task metadata, every
// planner decision and executed step in order, the final status with its
// metrics and safety score, and the policy snapshot that was active when the
// task started.
//
// # Recording Flow
//
//	Orchestrator
//	     ↓ StartTask / LogReasoning / LogStep
//	Recorder (open record per task, in memory)
//	     ↓ EndTask or Abort (exactly once per task)
//	Sink (JSONL file, one line per task, hash-chained)
//
// Records are written only when a task finishes. Steps are never flushed
// individually, so concurrent tasks sharing one log file cannot interleave
// partial records.
//
// # Tamper Evidence
//
// The JSONL sink stores in each line the SHA-256 of the previous line. Verify
// walks the file and reports the first broken link.
//
// # Subpackages
//
//   - recorder: builds records and hands finished ones to a Sink
//   - storage: JSONL file sink and in-memory sink
//   - query: query validation and defaults
//   - export: JSON and CSV exporters
package evidence
