package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/overwatch/pkg/agent"
	"mercator-hq/overwatch/pkg/cli"
)

func TestParseParams(t *testing.T) {
	got := parseParams(map[string]string{
		"query":   "alice",
		"limit":   "5",
		"verbose": "true",
		"ratio":   "0.5",
	})

	if got["query"] != "alice" {
		t.Errorf("query = %v, want alice", got["query"])
	}
	if got["limit"] != int64(5) {
		t.Errorf("limit = %#v, want int64(5)", got["limit"])
	}
	if got["verbose"] != true {
		t.Errorf("verbose = %#v, want true", got["verbose"])
	}
	if got["ratio"] != "0.5" {
		t.Errorf("ratio = %#v, want the string 0.5", got["ratio"])
	}

	if parseParams(nil) != nil {
		t.Error("parseParams(nil) should return nil")
	}
}

func TestReadTaskFile(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		wantID  string
	}{
		{
			name:   "valid",
			body:   `{"task_id": "t-9", "description": "Lookup user-9", "role": "admin", "parameters": {"query": "user-9"}}`,
			wantID: "t-9",
		},
		{
			name:    "missing description",
			body:    `{"task_id": "t-9"}`,
			wantErr: true,
		},
		{
			name:    "malformed",
			body:    `{"task_id": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "task.json")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatal(err)
			}

			task, err := readTaskFile(path, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readTaskFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if code := cli.ExitCode(err); code != cli.ExitConfig {
					t.Errorf("ExitCode() = %d, want %d", code, cli.ExitConfig)
				}
				return
			}
			if task.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", task.ID, tt.wantID)
			}
		})
	}
}

func TestReadTaskFile_Stdin(t *testing.T) {
	stdin := strings.NewReader(`{"description": "Lookup user-4", "role": "analyst"}`)
	task, err := readTaskFile("-", stdin)
	if err != nil {
		t.Fatalf("readTaskFile() error = %v", err)
	}
	if task.Description != "Lookup user-4" {
		t.Errorf("Description = %q", task.Description)
	}
}

func TestTaskFromFlags(t *testing.T) {
	saved := runFlags
	t.Cleanup(func() { runFlags = saved })

	runFlags.demo = false
	runFlags.taskFile = ""
	runFlags.description = ""
	if _, err := taskFromFlags(nil); err == nil {
		t.Error("taskFromFlags() error = nil, want missing description")
	}

	runFlags.description = "Lookup user-1"
	runFlags.role = "analyst"
	runFlags.taskID = "fixed"
	runFlags.params = map[string]string{"query": "user-1"}
	task, err := taskFromFlags(nil)
	if err != nil {
		t.Fatalf("taskFromFlags() error = %v", err)
	}
	if task.ID != "fixed" || task.Role != "analyst" || task.Parameters["query"] != "user-1" {
		t.Errorf("task = %+v", task)
	}

	runFlags.demo = true
	task, err = taskFromFlags(nil)
	if err != nil {
		t.Fatalf("taskFromFlags() error = %v", err)
	}
	if task.ID != demoTask().ID {
		t.Errorf("demo task ID = %q, want %q", task.ID, demoTask().ID)
	}
}

func TestPrintResponse(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	resp, err := a.orch.RunTask(context.Background(), demoTask())
	if err != nil {
		t.Fatalf("RunTask() error = %v", err)
	}
	record := a.recorder.LatestRecord()

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := printResponse(&buf, cli.FormatText, resp, record, true); err != nil {
			t.Fatalf("printResponse() error = %v", err)
		}
		out := buf.String()
		for _, want := range []string{"Task:         task-001", "Status:       completed", "STEP", "data_lookup", "Audit record:"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("json without audit", func(t *testing.T) {
		var buf bytes.Buffer
		if err := printResponse(&buf, cli.FormatJSON, resp, record, false); err != nil {
			t.Fatalf("printResponse() error = %v", err)
		}
		var out struct {
			Response *agent.AgentResponse `json:"response"`
			Audit    json.RawMessage      `json:"audit_record"`
		}
		if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if out.Response == nil || out.Response.TaskID != "task-001" {
			t.Errorf("Response = %+v", out.Response)
		}
		if out.Audit != nil {
			t.Errorf("audit_record = %s, want omitted", out.Audit)
		}
	})
}

func TestStepTable(t *testing.T) {
	table := stepTable{
		{Step: 1, Rationale: "look", ToolUsed: "data_lookup", LatencyMS: 1.5},
		{Step: 2, Rationale: "stop", Blocked: true, Violation: "pii"},
	}

	rows := table.Rows()
	if len(rows) != 2 || len(rows[0]) != len(table.Header()) {
		t.Fatalf("Rows() = %v", rows)
	}
	if rows[0][4] != "1.50" {
		t.Errorf("latency = %q, want 1.50", rows[0][4])
	}
	if rows[1][1] != "-" || rows[1][3] != "pii" {
		t.Errorf("row 2 = %v", rows[1])
	}
}
