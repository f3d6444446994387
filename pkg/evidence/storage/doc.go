// Package storage provides sinks for finished audit records.
//
// JSONLSink appends one JSON object per line to a file and syncs after every
// write. Each line carries the SHA-256 of the previous line in prev_hash,
// starting from GenesisHash, so edits or deletions are detectable with
// Verify. Reopening an existing file resumes the chain from its last line.
//
// SQLiteIndex loads records read back from the log into an in-memory SQLite
// database for filtered queries and ad-hoc SQL. It is never written to disk.
//
// MemoryStorage keeps records in memory for tests and for short-lived
// processes.
package storage
