// Package telemetry sets up OpenTelemetry tracing and metrics for openclaw.
//
// Spans cover a workflow run (workflow.run) with one child per phase
// (workflow.plan, workflow.execute, workflow.audit, workflow.revise,
// workflow.finalize, workflow.deliver) and one per model call
// (agent.generate). Metrics are exported over OTLP alongside the Prometheus
// registry served on /metrics.
//
// Telemetry failures do not stop the daemon. If an exporter cannot be
// created the instance is marked degraded and the global no-op providers are
// used instead.
//
// Tests use NewTestTelemetry, which records spans in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	o, _ := workflow.New(cfg, workflow.Deps{Tracer: tt.Tracer("test"), ...})
//	...
//	tt.AssertSpanExists(t, "workflow.audit")
package telemetry
