package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/overwatch/pkg/evidence"
)

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteIndex loads audit records into an in-memory SQLite database so they
// can be filtered and aggregated with SQL. Nothing is written to disk; the
// JSONL log stays the only durable copy. It implements both evidence.Sink
// and evidence.Reader.
//
// Tables:
//
//	audit_records  one row per record, plus the full record as JSON
//	audit_steps    one row per step entry, joined on record_id
type SQLiteIndex struct {
	db         *sql.DB
	insertRec  *sql.Stmt
	insertStep *sql.Stmt
	mu         sync.Mutex
	frozen     bool
	closeOnce  sync.Once
	logger     *slog.Logger
}

// QueryResult is the outcome of a free-form SQL query.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewSQLiteIndex creates an empty in-memory index.
func NewSQLiteIndex(logger *slog.Logger) (*SQLiteIndex, error) {
	if logger == nil {
		logger = slog.Default().With("component", "evidence.sqlite")
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "open", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, evidence.NewStorageError("sqlite", "create_schema", err)
	}

	idx := &SQLiteIndex{db: db, logger: logger}
	if idx.insertRec, err = db.Prepare(insertRecord); err != nil {
		db.Close()
		return nil, evidence.NewStorageError("sqlite", "prepare", err)
	}
	if idx.insertStep, err = db.Prepare(insertStep); err != nil {
		db.Close()
		return nil, evidence.NewStorageError("sqlite", "prepare", err)
	}
	return idx, nil
}

// LoadSQLiteIndex builds a frozen index over records.
func LoadSQLiteIndex(ctx context.Context, records []*evidence.AuditRecord, logger *slog.Logger) (*SQLiteIndex, error) {
	idx, err := NewSQLiteIndex(logger)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := idx.Append(ctx, r); err != nil {
			idx.Close()
			return nil, err
		}
	}
	if err := idx.Freeze(ctx); err != nil {
		idx.Close()
		return nil, err
	}
	idx.logger.Debug("audit index loaded", "records", len(records))
	return idx, nil
}

// Append inserts record and its step entries in one transaction. Records
// are unique by ID.
func (x *SQLiteIndex) Append(ctx context.Context, record *evidence.AuditRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return evidence.NewStorageError("sqlite", "append", fmt.Errorf("marshal record: %w", err))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.frozen {
		return evidence.NewStorageError("sqlite", "append", fmt.Errorf("index is read-only"))
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return evidence.NewStorageError("sqlite", "append", err)
	}
	defer tx.Rollback()

	executed := record.ExecutedSteps()
	blocked := 0
	for _, s := range executed {
		if s.Blocked {
			blocked++
		}
	}

	_, err = tx.StmtContext(ctx, x.insertRec).ExecContext(ctx,
		record.ID, record.TaskID, record.Role, record.Description, record.Status, nullString(record.Summary),
		formatSQLiteTime(record.StartedAt), formatSQLiteTime(record.CompletedAt),
		nullString(record.Policy.Name), nullString(record.Policy.Version), nullString(record.Policy.Fingerprint),
		len(executed), blocked, record.SafetyScore,
		nullString(record.Error), nullString(record.ErrorType),
		string(data),
	)
	if err != nil {
		return evidence.NewStorageError("sqlite", "append", err)
	}

	stepStmt := tx.StmtContext(ctx, x.insertStep)
	for _, s := range record.Steps {
		_, err := stepStmt.ExecContext(ctx,
			record.ID, record.TaskID, s.Step, s.Event, nullString(s.Tool),
			s.Blocked, nullString(s.Violation), s.LatencyMS,
		)
		if err != nil {
			return evidence.NewStorageError("sqlite", "append", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return evidence.NewStorageError("sqlite", "append", err)
	}
	return nil
}

// Freeze makes the database read-only. SQL run afterwards cannot modify
// the loaded records.
func (x *SQLiteIndex) Freeze(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, err := x.db.ExecContext(ctx, "PRAGMA query_only = ON;"); err != nil {
		return evidence.NewStorageError("sqlite", "freeze", err)
	}
	x.frozen = true
	return nil
}

// Query returns the records matching q, ordered by start time. Records that
// started at the same instant keep their insertion order.
func (x *SQLiteIndex) Query(ctx context.Context, q *evidence.Query) ([]*evidence.AuditRecord, error) {
	where, args := buildWhereClause(q)

	sqlQuery := "SELECT record FROM audit_records"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	order := "ASC"
	if q != nil && q.SortOrder == "desc" {
		order = "DESC"
	}
	sqlQuery += fmt.Sprintf(" ORDER BY started_at %s, seq ASC", order)

	if q != nil && (q.Limit > 0 || q.Offset > 0) {
		limit := -1
		if q.Limit > 0 {
			limit = q.Limit
		}
		sqlQuery += " LIMIT ? OFFSET ?"
		args = append(args, limit, q.Offset)
	}

	rows, err := x.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*evidence.AuditRecord{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, evidence.NewStorageError("sqlite", "scan", err)
		}
		var rec evidence.AuditRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, evidence.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError("sqlite", "query", err)
	}
	return records, nil
}

// Count returns the number of records matching the filters of q. Limit and
// offset are ignored.
func (x *SQLiteIndex) Count(ctx context.Context, q *evidence.Query) (int64, error) {
	where, args := buildWhereClause(q)

	sqlQuery := "SELECT COUNT(*) FROM audit_records"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := x.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, evidence.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// SQL runs a free-form statement and returns every row. Text columns come
// back as strings.
func (x *SQLiteIndex) SQL(ctx context.Context, stmt string) (*QueryResult, error) {
	rows, err := x.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "sql", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "sql", err)
	}

	res := &QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, evidence.NewStorageError("sqlite", "scan", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError("sqlite", "sql", err)
	}
	return res, nil
}

// Close releases the database. Calling Close more than once is safe.
func (x *SQLiteIndex) Close() error {
	var err error
	x.closeOnce.Do(func() {
		x.insertRec.Close()
		x.insertStep.Close()
		if cerr := x.db.Close(); cerr != nil {
			err = evidence.NewStorageError("sqlite", "close", cerr)
		}
	})
	return err
}

// buildWhereClause returns the WHERE clause (without the keyword) for the
// filters of q and its arguments.
func buildWhereClause(q *evidence.Query) (string, []any) {
	if q == nil {
		return "", nil
	}

	var conditions []string
	var args []any

	if q.StartTime != nil {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, formatSQLiteTime(*q.StartTime))
	}
	if q.EndTime != nil {
		conditions = append(conditions, "started_at <= ?")
		args = append(args, formatSQLiteTime(*q.EndTime))
	}
	if q.TaskID != "" {
		conditions = append(conditions, "task_id = ?")
		args = append(args, q.TaskID)
	}
	if q.Role != "" {
		conditions = append(conditions, "role = ?")
		args = append(args, q.Role)
	}
	if q.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, q.Status)
	}

	return strings.Join(conditions, " AND "), args
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
