package storage

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"mercator-hq/overwatch/pkg/evidence"
)

// GenesisHash is the prev_hash of the first record in a new log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// maxLineSize bounds a single audit line when reading the log back.
const maxLineSize = 16 * 1024 * 1024

// logFile is the part of *os.File the sink writes through.
type logFile interface {
	Write(p []byte) (int, error)
	Sync() error
	Close() error
}

// JSONLSink is an append-only, hash-chained JSONL audit log.
type JSONLSink struct {
	path     string
	file     logFile
	prevHash string
	count    int
	mu       sync.Mutex
	logger   *slog.Logger
}

// OpenJSONL opens (or creates) the audit log at path. When the file already
// has content, the chain continues from its last line.
func OpenJSONL(path string, logger *slog.Logger) (*JSONLSink, error) {
	if path == "" {
		return nil, evidence.NewStorageError("jsonl", "open", fmt.Errorf("path cannot be empty"))
	}
	if logger == nil {
		logger = slog.Default().With("component", "evidence.jsonl")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, evidence.NewStorageError("jsonl", "open", fmt.Errorf("create directory: %w", err))
		}
	}

	prevHash := GenesisHash
	count := 0
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		last, n, err := lastLine(path)
		if err != nil {
			return nil, evidence.NewStorageError("jsonl", "open", err)
		}
		if len(last) > 0 {
			prevHash = HashLine(last)
		}
		count = n
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, evidence.NewStorageError("jsonl", "open", err)
	}

	logger.Info("audit log opened", "path", path, "existing_records", count)

	return &JSONLSink{
		path:     path,
		file:     file,
		prevHash: prevHash,
		count:    count,
		logger:   logger,
	}, nil
}

// Append writes record as one line and syncs it to disk. The caller's record
// is not modified.
func (s *JSONLSink) Append(ctx context.Context, record *evidence.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return evidence.NewStorageError("jsonl", "append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return evidence.NewStorageError("jsonl", "append", os.ErrClosed)
	}

	entry := *record
	entry.PrevHash = s.prevHash

	line, err := json.Marshal(&entry)
	if err != nil {
		return evidence.NewStorageError("jsonl", "append", fmt.Errorf("marshal record: %w", err))
	}

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return evidence.NewStorageError("jsonl", "append", err)
	}
	// The line is in the file now, so the next one must chain to it even if
	// the sync below fails.
	s.prevHash = HashLine(line)
	s.count++

	if err := s.file.Sync(); err != nil {
		s.logger.Warn("audit line written but not synced", "task_id", record.TaskID, "error", err)
		return evidence.NewStorageError("jsonl", "append", fmt.Errorf("sync: %w", err))
	}
	return nil
}

// Query reads the log and returns the matching records.
func (s *JSONLSink) Query(ctx context.Context, q *evidence.Query) ([]*evidence.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReadJSONL(ctx, s.path, q)
}

// Count returns the number of records written to the log, including those
// present before it was opened.
func (s *JSONLSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Path returns the log file path.
func (s *JSONLSink) Path() string {
	return s.path
}

// Close closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// HashLine returns "sha256:<hex>" of line.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

// ReadJSONL reads every record in the log at path and applies q.
func ReadJSONL(ctx context.Context, path string, q *evidence.Query) ([]*evidence.AuditRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, evidence.NewStorageError("jsonl", "query", err)
	}
	defer f.Close()

	var records []*evidence.AuditRecord
	scanner := newScanner(f)
	lineNum := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, evidence.NewStorageError("jsonl", "query", err)
		}
		lineNum++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec evidence.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, evidence.NewStorageError("jsonl", "query", fmt.Errorf("line %d: %w", lineNum, err))
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, evidence.NewStorageError("jsonl", "query", err)
	}

	return applyQuery(records, q), nil
}

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify validates the hash chain of the log at path and reports the first
// broken link.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	scanner := newScanner(f)
	lineNum := 0
	expected := GenesisHash

	for scanner.Scan() {
		lineNum++
		line := append([]byte(nil), scanner.Bytes()...)

		var head struct {
			PrevHash string `json:"prev_hash"`
		}
		if err := json.Unmarshal(line, &head); err != nil {
			return VerifyResult{Lines: lineNum - 1, Error: fmt.Sprintf("parse error: %v", err), ErrorLine: lineNum}
		}
		if head.PrevHash != expected {
			return VerifyResult{
				Lines:     lineNum - 1,
				Error:     fmt.Sprintf("hash mismatch: expected %s, got %s", expected, head.PrevHash),
				ErrorLine: lineNum,
			}
		}
		expected = HashLine(line)
	}

	if err := scanner.Err(); err != nil {
		return VerifyResult{Lines: lineNum, Error: fmt.Sprintf("scan: %v", err)}
	}

	return VerifyResult{Valid: true, Lines: lineNum}
}

func lastLine(path string) ([]byte, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read existing log: %w", err)
	}
	defer f.Close()

	var last []byte
	n := 0
	scanner := newScanner(f)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		last = append(last[:0], scanner.Bytes()...)
		n++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan existing log: %w", err)
	}
	return last, n, nil
}

func newScanner(f *os.File) *bufio.Scanner {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}
