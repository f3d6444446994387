// Package telemetry groups the observability packages of Overwatch.
//
// # Components
//
//   - logging: slog construction, task-scoped context attributes and PII
//     redaction of log values
//   - metrics: Prometheus counters and histograms for tasks, steps,
//     guardrail blocks and policy reloads, with an optional textfile dump
//   - tracing: OpenTelemetry spans for tasks, steps and guardrail screens,
//     exported over OTLP gRPC and propagated with W3C trace context
//   - health: readiness checks for the policy source, the audit log and
//     output directories
//
// # Usage
//
//	logger, _ := logging.New(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, _ := tracing.New(&cfg.Telemetry.Tracing)
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, tracing.SpanTask)
//	defer span.End()
//
// # PII Protection
//
// With telemetry.logging.redact_pii set, string attributes are scrubbed
// before they reach the handler. E-mail addresses, card numbers, phone
// numbers and API keys are replaced with fixed markers.
package telemetry
