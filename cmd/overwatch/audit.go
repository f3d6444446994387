package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/overwatch/pkg/cli"
	"mercator-hq/overwatch/pkg/evidence"
	"mercator-hq/overwatch/pkg/evidence/export"
	"mercator-hq/overwatch/pkg/evidence/query"
	"mercator-hq/overwatch/pkg/evidence/storage"
)

var auditFlags struct {
	file   string
	offset int
	taskID string
	role   string
	status string
	since  time.Duration

	tailLines    int
	tailFormat   string
	verifyFormat string
	exportLimit  int
	exportFormat string
	output       string
	pretty       bool
	queryLimit   int
	queryFormat  string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read the audit log",
	Long: `Read, verify and export the JSONL audit log.

Every finished task is one line of the log. Each line carries the hash of the
line before it, so any edit or removal breaks the chain.

Subcommands:
  tail   - Show the most recent records
  verify - Verify the hash chain
  export - Export records as JSON or CSV
  query  - Run SQL over the records

The log path defaults to audit.path from the configuration.

Examples:
  # Show the last 20 records
  overwatch audit tail -n 20

  # Verify a copied log
  overwatch audit verify --file /backup/audit.jsonl

  # Export blocked tasks of the last day as CSV
  overwatch audit export --status blocked --since 24h --format csv -o blocked.csv`,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent records",
	Long: `Show the most recent audit records, newest first.

Examples:
  overwatch audit tail
  overwatch audit tail -n 5 --role analyst --format json`,
	RunE: tailAudit,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain",
	Long: `Verify the hash chain of the audit log and report the first broken line.

Examples:
  overwatch audit verify
  overwatch audit verify --file audit.jsonl --format json`,
	RunE: verifyAudit,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export records as JSON or CSV",
	Long: `Export audit records, oldest first, as a JSON array or CSV rows.

Examples:
  overwatch audit export --format json -o audit.json
  overwatch audit export --format csv --task-id task-001`,
	RunE: exportAudit,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query [SQL]",
	Short: "Run SQL over the records",
	Long: `Load the matching audit records into an in-memory SQLite database and
run one read-only SQL statement over them. Nothing is written to disk.

Tables:
  audit_records  id, task_id, role, description, status, summary,
                 started_at, completed_at, policy_name, policy_version,
                 policy_fingerprint, step_count, blocked_steps,
                 safety_score, error, error_type, record (full JSON)
  audit_steps    record_id, task_id, step, event, tool, blocked,
                 violation, latency_ms

Timestamps are UTC text (2006-01-02T15:04:05.000000000Z). Without a
statement the status counts are shown.

Examples:
  overwatch audit query
  overwatch audit query "SELECT tool, COUNT(*) FROM audit_steps WHERE blocked = 1 GROUP BY tool"
  overwatch audit query --role analyst --format csv "SELECT task_id, safety_score FROM audit_records"`,
	Args: cobra.MaximumNArgs(1),
	RunE: queryAudit,
}

// defaultAuditSQL summarizes records by status.
const defaultAuditSQL = `SELECT status, COUNT(*) AS tasks, SUM(blocked_steps) AS blocked_steps
FROM audit_records GROUP BY status ORDER BY tasks DESC, status`

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditTailCmd, auditVerifyCmd, auditExportCmd, auditQueryCmd)

	auditCmd.PersistentFlags().StringVar(&auditFlags.file, "file", "", "audit log path (default: audit.path)")

	for _, c := range []*cobra.Command{auditTailCmd, auditExportCmd, auditQueryCmd} {
		c.Flags().StringVar(&auditFlags.taskID, "task-id", "", "filter by task ID")
		c.Flags().StringVar(&auditFlags.role, "role", "", "filter by role")
		c.Flags().StringVar(&auditFlags.status, "status", "", "filter by status (completed, blocked, step_limit, rejected, error)")
		c.Flags().DurationVar(&auditFlags.since, "since", 0, "only records started within this duration (e.g. 24h)")
		c.Flags().IntVar(&auditFlags.offset, "offset", 0, "skip the first N matching records")
	}

	auditTailCmd.Flags().IntVarP(&auditFlags.tailLines, "lines", "n", 10, "number of records to show")
	auditTailCmd.Flags().StringVar(&auditFlags.tailFormat, "format", "text", "output format: text, json, csv")

	auditVerifyCmd.Flags().StringVar(&auditFlags.verifyFormat, "format", "text", "output format: text, json")

	auditExportCmd.Flags().IntVar(&auditFlags.exportLimit, "limit", query.MaxLimit, "max records to export")
	auditExportCmd.Flags().StringVar(&auditFlags.exportFormat, "format", "json", "output format: json, csv")
	auditExportCmd.Flags().StringVarP(&auditFlags.output, "output", "o", "", "output file (default: stdout)")
	auditExportCmd.Flags().BoolVar(&auditFlags.pretty, "pretty", true, "indent JSON output")

	auditQueryCmd.Flags().IntVar(&auditFlags.queryLimit, "limit", query.MaxLimit, "max records to load")
	auditQueryCmd.Flags().StringVar(&auditFlags.queryFormat, "format", "text", "output format: text, json, csv")
}

// auditPath resolves --file against the configured audit path.
func auditPath() (string, error) {
	if auditFlags.file != "" {
		return auditFlags.file, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Audit.Path == "" {
		return "", cli.NewConfigError("audit.path", "no audit log given and none configured")
	}
	return cfg.Audit.Path, nil
}

// auditQuery builds a validated query from the filter flags.
func auditQuery(limit int, sortOrder string, now time.Time) (*evidence.Query, error) {
	q := &evidence.Query{
		TaskID:    auditFlags.taskID,
		Role:      auditFlags.role,
		Status:    auditFlags.status,
		Limit:     limit,
		Offset:    auditFlags.offset,
		SortOrder: sortOrder,
	}
	if auditFlags.since > 0 {
		start := now.Add(-auditFlags.since)
		q.StartTime = &start
	}
	if err := query.Validate(q); err != nil {
		return nil, cli.NewConfigError("query", err.Error())
	}
	query.ApplyDefaults(q)
	return q, nil
}

func readAudit(cmd *cobra.Command, limit int, sortOrder string) ([]*evidence.AuditRecord, error) {
	q, err := auditQuery(limit, sortOrder, time.Now())
	if err != nil {
		return nil, err
	}

	path, err := auditPath()
	if err != nil {
		return nil, err
	}
	return storage.ReadJSONL(cmd.Context(), path, q)
}

func tailAudit(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(auditFlags.tailFormat)
	if err != nil {
		return err
	}
	records, err := readAudit(cmd, auditFlags.tailLines, "desc")
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch format {
	case cli.FormatJSON:
		return cli.NewFormatter(cli.FormatJSON).FormatTo(w, records)
	case cli.FormatCSV:
		return export.NewCSVExporter(true).Export(cmd.Context(), records, w)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No audit records found")
		return nil
	}
	return cli.NewFormatter(cli.FormatText).FormatTo(w, recordTable(records))
}

func exportAudit(cmd *cobra.Command, args []string) error {
	var exporter evidence.Exporter
	switch auditFlags.exportFormat {
	case "json":
		exporter = export.NewJSONExporter(auditFlags.pretty)
	case "csv":
		exporter = export.NewCSVExporter(true)
	default:
		return cli.NewConfigError("format", fmt.Sprintf("unsupported export format %q (want json or csv)", auditFlags.exportFormat))
	}

	records, err := readAudit(cmd, auditFlags.exportLimit, "asc")
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if auditFlags.output != "" {
		f, err := os.Create(auditFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := exporter.Export(cmd.Context(), records, w); err != nil {
		return err
	}
	if auditFlags.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records to %s\n", len(records), auditFlags.output)
	}
	return nil
}

func verifyAudit(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(auditFlags.verifyFormat)
	if err != nil {
		return err
	}
	path, err := auditPath()
	if err != nil {
		return err
	}

	result := storage.Verify(path)
	w := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		if err := cli.NewFormatter(cli.FormatJSON).FormatTo(w, result); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintf(w, "✓ Audit log intact (%d records)\n", result.Lines)
	} else {
		fmt.Fprintf(w, "✗ Audit log broken after %d records\n", result.Lines)
		if result.ErrorLine > 0 {
			fmt.Fprintf(w, "  Line %d: %s\n", result.ErrorLine, result.Error)
		} else {
			fmt.Fprintf(w, "  %s\n", result.Error)
		}
	}

	if !result.Valid {
		return evidence.NewStorageError("jsonl", "verify", fmt.Errorf("%s: %s", path, result.Error))
	}
	return nil
}

func queryAudit(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(auditFlags.queryFormat)
	if err != nil {
		return err
	}
	stmt := defaultAuditSQL
	if len(args) == 1 {
		stmt = args[0]
	}

	records, err := readAudit(cmd, auditFlags.queryLimit, "asc")
	if err != nil {
		return err
	}
	index, err := storage.LoadSQLiteIndex(cmd.Context(), records, nil)
	if err != nil {
		return err
	}
	defer index.Close()

	result, err := index.SQL(cmd.Context(), stmt)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(w, result)
	}
	return cli.NewFormatter(format).FormatTo(w, sqlTable{result})
}

// sqlTable renders a SQL result as a table.
type sqlTable struct{ res *storage.QueryResult }

func (t sqlTable) Header() []string { return t.res.Columns }

func (t sqlTable) Rows() [][]string {
	rows := make([][]string, len(t.res.Rows))
	for i, row := range t.res.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			switch v := v.(type) {
			case nil:
				cells[j] = "NULL"
			case float64:
				cells[j] = strconv.FormatFloat(v, 'f', -1, 64)
			default:
				cells[j] = fmt.Sprint(v)
			}
		}
		rows[i] = cells
	}
	return rows
}

// recordTable renders audit records as a table.
type recordTable []*evidence.AuditRecord

func (t recordTable) Header() []string {
	return []string{"STARTED", "TASK", "ROLE", "STATUS", "STEPS", "SAFETY", "POLICY"}
}

func (t recordTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, r := range t {
		policy := "-"
		if r.Policy.Name != "" {
			policy = r.Policy.Name + "@" + r.Policy.Version
		}
		rows[i] = []string{
			r.StartedAt.Format(time.RFC3339),
			r.TaskID,
			r.Role,
			r.Status,
			strconv.Itoa(len(r.ExecutedSteps())),
			strconv.FormatFloat(r.SafetyScore, 'f', 2, 64),
			policy,
		}
	}
	return rows
}
