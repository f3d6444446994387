package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"mercator-hq/overwatch/pkg/evidence"
)

// CSVExporter exports audit records to CSV format.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// Export writes one row per record to w.
func (e *CSVExporter) Export(ctx context.Context, records []*evidence.AuditRecord, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
		if err := writer.Write(recordToRow(record)); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return evidence.NewExportError("csv", len(records), err)
	}
	return nil
}

func headerRow() []string {
	return []string{
		"id", "task_id", "role", "description",
		"started_at", "completed_at",
		"policy_name", "policy_version", "policy_fingerprint",
		"status", "summary", "safety_score",
		"step_count", "blocked_steps", "violation",
		"steps", "metrics",
		"error", "error_type", "prev_hash",
	}
}

func recordToRow(record *evidence.AuditRecord) []string {
	formatTime := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339Nano)
	}
	formatJSON := func(v any) string {
		data, _ := json.Marshal(v)
		return string(data)
	}

	executed := record.ExecutedSteps()
	blocked := 0
	violation := ""
	for _, s := range executed {
		if s.Blocked {
			blocked++
		}
		if s.Violation != "" {
			violation = s.Violation
		}
	}

	return []string{
		record.ID,
		record.TaskID,
		record.Role,
		record.Description,
		formatTime(record.StartedAt),
		formatTime(record.CompletedAt),
		record.Policy.Name,
		record.Policy.Version,
		record.Policy.Fingerprint,
		record.Status,
		record.Summary,
		fmt.Sprintf("%.2f", record.SafetyScore),
		fmt.Sprintf("%d", len(executed)),
		fmt.Sprintf("%d", blocked),
		violation,
		formatJSON(record.Steps),
		formatJSON(record.Metrics),
		record.Error,
		record.ErrorType,
		record.PrevHash,
	}
}
