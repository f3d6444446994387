// Package metrics provides Prometheus metrics for overwatch.
//
// # Metrics Categories
//
//   - Task metrics: finished tasks by status, duration, steps per task, safety score
//   - Step metrics: steps by tool and blocked flag, latency, slow steps
//   - Guardrail metrics: blocks by stage and reason
//   - Policy metrics: reload attempts, reload duration, active policy info
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.ObservePolicyStore(policyStore)
//
//	collector.RecordStep("data_lookup", false, 3*time.Millisecond)
//	collector.RecordTask("completed", 1, 12*time.Millisecond, 1.0)
//
//	// On exit, for the node_exporter textfile collector:
//	collector.WriteTextfile("/var/lib/node_exporter/overwatch.prom")
//
// overwatch has no network listener, so the registry is exported through
// the textfile format rather than an HTTP endpoint.
package metrics
