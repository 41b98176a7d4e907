// Package observability provides the tracing, metrics, structured logging and
// health check plumbing shared by every Nexus Health process.
//
// # Overview
//
// NewObservability installs global OpenTelemetry providers:
//   - a tracer provider, exporting over OTLP/gRPC when Config.OTLPEndpoint is set
//   - a meter provider backed by the Prometheus exporter
//   - W3C trace-context and baggage propagators
//
// It also returns a *slog.Logger whose records carry the service name and the
// trace and span IDs of the active span.
//
// # Quick Start
//
//	config := observability.DefaultConfig("insurer")
//	config.OTLPEndpoint = "127.0.0.1:4317"
//	obs, err := observability.NewObservability(ctx, config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer obs.Shutdown(context.Background())
//
//	metrics, _ := observability.NewMetricsManager(obs.Meter)
//	traces := observability.NewTraceManager(config.ServiceName)
//
// # Health Checks
//
// HealthServer serves /health, /ready and /metrics. Checkers run in
// registration order; any unhealthy checker turns the response into a 503.
// GRPCHealthChecker probes a peer with the grpc.health.v1 protocol, which
// every capability server registers next to its capability service.
//
// # Metrics
//
//	capability_invocations_total{capability,success}
//	capability_invocation_duration_seconds{capability}
//	capability_invocation_errors_total{capability,error}
//	tool_calls_total{tool,outcome}
//	tool_call_duration_seconds{tool,outcome}
//	orchestrator_runs_total{outcome}
//	orchestrator_run_duration_seconds{outcome}
//	logs_total{level,service}
//	go_goroutines, go_memstats_alloc_bytes, process_sys_memory_bytes
//
// # Thread Safety
//
// TraceManager and MetricsManager are safe for concurrent use. HealthServer
// checkers may be added while the server is running.
package observability
