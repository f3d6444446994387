package storage

// Schema creates the query tables. Timestamps are UTC text in
// sqliteTimeLayout, which sorts lexically and is understood by SQLite's
// date functions.
const Schema = `
CREATE TABLE audit_records (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    task_id TEXT NOT NULL,
    role TEXT NOT NULL,
    description TEXT,
    status TEXT NOT NULL,
    summary TEXT,

    started_at TEXT NOT NULL,
    completed_at TEXT NOT NULL,

    policy_name TEXT,
    policy_version TEXT,
    policy_fingerprint TEXT,

    step_count INTEGER NOT NULL,
    blocked_steps INTEGER NOT NULL,
    safety_score REAL,

    error TEXT,
    error_type TEXT,

    record TEXT NOT NULL
);

CREATE TABLE audit_steps (
    record_id TEXT NOT NULL REFERENCES audit_records(id),
    task_id TEXT NOT NULL,
    step INTEGER NOT NULL,
    event TEXT NOT NULL,
    tool TEXT,
    blocked INTEGER NOT NULL,
    violation TEXT,
    latency_ms REAL
);

CREATE INDEX idx_audit_started_at ON audit_records(started_at);
CREATE INDEX idx_audit_task_id ON audit_records(task_id);
CREATE INDEX idx_audit_status ON audit_records(status);
CREATE INDEX idx_steps_record ON audit_steps(record_id);
`

const insertRecord = `
INSERT INTO audit_records (
    id, task_id, role, description, status, summary,
    started_at, completed_at,
    policy_name, policy_version, policy_fingerprint,
    step_count, blocked_steps, safety_score,
    error, error_type,
    record
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`

const insertStep = `
INSERT INTO audit_steps (
    record_id, task_id, step, event, tool, blocked, violation, latency_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`
