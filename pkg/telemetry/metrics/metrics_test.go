package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"mercator-hq/overwatch/pkg/config"
	"mercator-hq/overwatch/pkg/policy/store"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:             true,
		Namespace:           "test",
		Subsystem:           "agent",
		StepLatencyBuckets:  []float64{0.01, 0.1, 1},
		TaskDurationBuckets: []float64{0.1, 1, 10},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)

	if collector.Registry() != registry {
		t.Error("collector registry not set correctly")
	}

	defaults := NewCollector(&config.MetricsConfig{Enabled: true}, nil)
	if defaults.config.Namespace != config.DefaultMetricsNamespace {
		t.Errorf("expected default namespace, got %q", defaults.config.Namespace)
	}
	if defaults.Registry() == nil {
		t.Error("expected a registry to be created")
	}
}

func TestCollector_RecordTask(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	c.RecordTask("completed", 2, 150*time.Millisecond, 1.0)
	c.RecordTask("completed", 1, 20*time.Millisecond, 1.0)
	c.RecordTask("blocked", 1, 5*time.Millisecond, 0.9)

	tasks := c.taskMetrics.tasksTotal
	if got := testutil.ToFloat64(tasks.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed tasks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(tasks.WithLabelValues("blocked")); got != 1 {
		t.Errorf("blocked tasks = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.taskMetrics.taskDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestCollector_RecordAbortedTask(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	c.RecordAbortedTask("rejected", time.Millisecond)

	if got := testutil.ToFloat64(c.taskMetrics.tasksTotal.WithLabelValues("rejected")); got != 1 {
		t.Errorf("rejected tasks = %v, want 1", got)
	}
	for name, h := range map[string]prometheus.Histogram{
		"safety_score": c.taskMetrics.safetyScore,
		"task_steps":   c.taskMetrics.taskSteps,
	} {
		m := &dto.Metric{}
		if err := h.Write(m); err != nil {
			t.Fatalf("Write(%s) error = %v", name, err)
		}
		if n := m.GetHistogram().GetSampleCount(); n != 0 {
			t.Errorf("%s observed %d samples for an aborted task", name, n)
		}
	}
}

func TestCollector_RecordStep(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	c.RecordStep("data_lookup", false, 3*time.Millisecond)
	c.RecordStep("data_lookup", true, 0)
	c.RecordStep("", true, 0)
	c.RecordSlowStep("data_lookup")
	c.RecordGuardrailBlock("tool_request", "pii")

	steps := c.taskMetrics.stepsTotal
	if got := testutil.ToFloat64(steps.WithLabelValues("data_lookup", "false")); got != 1 {
		t.Errorf("executed steps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(steps.WithLabelValues("data_lookup", "true")); got != 1 {
		t.Errorf("blocked steps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(steps.WithLabelValues("none", "true")); got != 1 {
		t.Errorf("unnamed tool steps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.taskMetrics.slowStepsTotal.WithLabelValues("data_lookup")); got != 1 {
		t.Errorf("slow steps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.taskMetrics.guardrailBlocks.WithLabelValues("tool_request", "pii")); got != 1 {
		t.Errorf("guardrail blocks = %v, want 1", got)
	}
	// Latency is only observed for executed steps.
	if n := testutil.CollectAndCount(c.taskMetrics.stepLatency); n != 1 {
		t.Errorf("latency series = %d, want 1", n)
	}
}

func TestCollector_ToolCardinality(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	c.toolLimiter = NewCardinalityLimiter(2)

	for i := 0; i < 5; i++ {
		c.RecordStep(fmt.Sprintf("tool-%d", i), true, 0)
	}

	if got := testutil.ToFloat64(c.taskMetrics.stepsTotal.WithLabelValues(OtherLabel, "true")); got != 3 {
		t.Errorf("other bucket = %v, want 3", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c := NewCollector(cfg, nil)

	c.RecordTask("completed", 1, time.Millisecond, 1)
	c.RecordStep("data_lookup", false, time.Millisecond)

	if n := testutil.CollectAndCount(c.taskMetrics.tasksTotal); n != 0 {
		t.Errorf("disabled collector recorded %d series", n)
	}
	if err := c.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")); err != nil {
		t.Errorf("WriteTextfile on disabled collector: %v", err)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.RecordTask("completed", 1, time.Millisecond, 1)
	c.RecordStep("x", false, 0)
	c.RecordSlowStep("x")
	c.RecordGuardrailBlock("task", "pii")
	c.RecordPolicyReload(true, 0)
	c.SetActivePolicy("a", "b", "c")
	c.ObservePolicyStore(nil)
	if c.Registry() != nil {
		t.Error("nil collector should have nil registry")
	}
	if err := c.WriteTextfile("ignored"); err != nil {
		t.Errorf("nil collector WriteTextfile: %v", err)
	}
}

func TestCollector_ObservePolicyStore(t *testing.T) {
	src := store.NewMemorySource("mem", []byte("policy:\n  name: p\n  version: '1'\n  checks: [pii]\n"))
	s, err := store.New(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}

	c := NewCollector(testConfig(), nil)
	c.ObservePolicyStore(s)

	fp := s.Snapshot().Fingerprint
	if got := testutil.ToFloat64(c.policyMetrics.info.WithLabelValues("p", "1", fp)); got != 1 {
		t.Errorf("policy info = %v, want 1", got)
	}

	src.Set([]byte("policy:\n  name: p\n  version: '2'\n"))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	src.Set([]byte("policy: ["))
	if err := s.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}

	reloads := c.policyMetrics.reloadsTotal
	if got := testutil.ToFloat64(reloads.WithLabelValues("success")); got != 1 {
		t.Errorf("successful reloads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(reloads.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed reloads = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.policyMetrics.info); n != 1 {
		t.Errorf("info series = %d, want 1 after reload", n)
	}
	if got := testutil.ToFloat64(c.policyMetrics.info.WithLabelValues("p", "2", s.Snapshot().Fingerprint)); got != 1 {
		t.Errorf("info for v2 = %v, want 1", got)
	}
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	c.RecordTask("completed", 1, 10*time.Millisecond, 1)

	path := filepath.Join(t.TempDir(), "overwatch.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `test_agent_tasks_total{status="completed"} 1`) {
		t.Errorf("textfile missing task counter:\n%s", data)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	limiter := NewCardinalityLimiter(2)

	if !limiter.Allow("a") || !limiter.Allow("b") {
		t.Fatal("expected first two values allowed")
	}
	if limiter.Allow("c") {
		t.Error("expected third value rejected")
	}
	if !limiter.Allow("a") {
		t.Error("expected known value allowed")
	}
	if limiter.Count() != 2 {
		t.Errorf("Count() = %d, want 2", limiter.Count())
	}
}
