// Package tracing provides OpenTelemetry tracing for overwatch.
//
// Each task runs under an "overwatch.task" span with one "overwatch.step"
// child per loop iteration. Spans carry the task id, role, policy
// fingerprint, tool, violation and latency as overwatch.* attributes.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, tracing.SpanTask, tracing.TaskAttributes(id, role))
//	defer span.End()
//
// When tracing is disabled New returns a no-op tracer, and a nil *Tracer
// is also safe to call.
//
// Spans are exported over OTLP gRPC. Sampling is "always", "never" or
// "ratio", wrapped in ParentBased so a trace context submitted with a task
// (see ExtractFromMap) decides for the whole task.
package tracing
