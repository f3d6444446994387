package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/overwatch/pkg/config"
)

// TaskMetrics tracks the agent loop.
//
// Metrics:
//   - overwatch_agent_tasks_total: finished tasks by terminal status
//   - overwatch_agent_task_duration_seconds: task wall time by status
//   - overwatch_agent_task_steps: recorded steps per task
//   - overwatch_agent_safety_score: safety score distribution
//   - overwatch_agent_steps_total: steps by tool and blocked flag
//   - overwatch_agent_step_latency_seconds: step latency by tool
//   - overwatch_agent_slow_steps_total: steps over the advisory timeout
//   - overwatch_agent_guardrail_blocks_total: blocks by stage and reason
type TaskMetrics struct {
	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	taskSteps       prometheus.Histogram
	safetyScore     prometheus.Histogram
	stepsTotal      *prometheus.CounterVec
	stepLatency     *prometheus.HistogramVec
	slowStepsTotal  *prometheus.CounterVec
	guardrailBlocks *prometheus.CounterVec
}

// NewTaskMetrics creates and registers task metrics with the provided registry.
func NewTaskMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *TaskMetrics {
	tm := &TaskMetrics{
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tasks_total",
				Help:      "Total number of finished tasks by terminal status",
			},
			[]string{"status"},
		),

		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "task_duration_seconds",
				Help:      "Task wall time in seconds",
				Buckets:   cfg.TaskDurationBuckets,
			},
			[]string{"status"},
		),

		taskSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "task_steps",
				Help:      "Number of recorded steps per task",
				Buckets:   prometheus.LinearBuckets(0, 1, 11),
			},
		),

		safetyScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "safety_score",
				Help:      "Safety score per finished task",
				Buckets:   []float64{0.1, 0.5, 0.7, 0.8, 0.9, 1.0},
			},
		),

		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "steps_total",
				Help:      "Total number of recorded tool steps",
			},
			[]string{"tool", "blocked"},
		),

		stepLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "step_latency_seconds",
				Help:      "Tool step latency in seconds",
				Buckets:   cfg.StepLatencyBuckets,
			},
			[]string{"tool"},
		),

		slowStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "slow_steps_total",
				Help:      "Steps that exceeded the advisory step timeout",
			},
			[]string{"tool"},
		),

		guardrailBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "guardrail_blocks_total",
				Help:      "Guardrail decisions that blocked a task or step",
			},
			[]string{"stage", "reason"},
		),
	}

	registry.MustRegister(
		tm.tasksTotal,
		tm.taskDuration,
		tm.taskSteps,
		tm.safetyScore,
		tm.stepsTotal,
		tm.stepLatency,
		tm.slowStepsTotal,
		tm.guardrailBlocks,
	)

	return tm
}

// RecordTask records a finished task.
func (tm *TaskMetrics) RecordTask(status string, steps int, duration time.Duration, safetyScore float64) {
	tm.tasksTotal.WithLabelValues(status).Inc()
	tm.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
	tm.taskSteps.Observe(float64(steps))
	tm.safetyScore.Observe(safetyScore)
}

// RecordAborted records a task that ended without a response. Step count
// and safety score are not observed.
func (tm *TaskMetrics) RecordAborted(status string, duration time.Duration) {
	tm.tasksTotal.WithLabelValues(status).Inc()
	tm.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStep records one step.
func (tm *TaskMetrics) RecordStep(tool string, blocked bool, latency time.Duration) {
	tm.stepsTotal.WithLabelValues(tool, strconv.FormatBool(blocked)).Inc()
	if !blocked {
		tm.stepLatency.WithLabelValues(tool).Observe(latency.Seconds())
	}
}

// RecordSlowStep counts a slow step.
func (tm *TaskMetrics) RecordSlowStep(tool string) {
	tm.slowStepsTotal.WithLabelValues(tool).Inc()
}

// RecordGuardrailBlock counts a guardrail block.
func (tm *TaskMetrics) RecordGuardrailBlock(stage, reason string) {
	tm.guardrailBlocks.WithLabelValues(stage, reason).Inc()
}
