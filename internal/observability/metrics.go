package observability

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type MetricsManager struct {
	meter metric.Meter

	// Capability metrics (provider side)
	invocationsTotal   metric.Int64Counter
	invocationDuration metric.Float64Histogram
	invocationErrors   metric.Int64Counter

	// Delegation metrics (consumer side)
	toolCallsTotal   metric.Int64Counter
	toolCallDuration metric.Float64Histogram

	// Orchestrator metrics
	runsTotal   metric.Int64Counter
	runDuration metric.Float64Histogram

	// System metrics
	goGoroutines         metric.Int64Gauge
	goMemstatsAllocBytes metric.Int64Gauge
	processSysBytes      metric.Int64Gauge
}

func NewMetricsManager(meter metric.Meter) (*MetricsManager, error) {
	mm := &MetricsManager{meter: meter}

	var err error

	mm.invocationsTotal, err = meter.Int64Counter(
		"capability_invocations_total",
		metric.WithDescription("Total number of capability invocations handled"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.invocationDuration, err = meter.Float64Histogram(
		"capability_invocation_duration_seconds",
		metric.WithDescription("Capability handler duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.invocationErrors, err = meter.Int64Counter(
		"capability_invocation_errors_total",
		metric.WithDescription("Total number of capability handler failures"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.toolCallsTotal, err = meter.Int64Counter(
		"tool_calls_total",
		metric.WithDescription("Total number of delegated tool calls"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.toolCallDuration, err = meter.Float64Histogram(
		"tool_call_duration_seconds",
		metric.WithDescription("Delegated tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.runsTotal, err = meter.Int64Counter(
		"orchestrator_runs_total",
		metric.WithDescription("Total number of orchestrated queries"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.runDuration, err = meter.Float64Histogram(
		"orchestrator_run_duration_seconds",
		metric.WithDescription("End-to-end duration of orchestrated queries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.goGoroutines, err = meter.Int64Gauge(
		"go_goroutines",
		metric.WithDescription("Number of goroutines that currently exist"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.goMemstatsAllocBytes, err = meter.Int64Gauge(
		"go_memstats_alloc_bytes",
		metric.WithDescription("Number of bytes allocated and still in use"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	mm.processSysBytes, err = meter.Int64Gauge(
		"process_sys_memory_bytes",
		metric.WithDescription("Bytes of memory obtained from the OS"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return mm, nil
}

func (mm *MetricsManager) IncrementInvocations(ctx context.Context, capability string, success bool) {
	mm.invocationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.Bool("success", success),
	))
}

func (mm *MetricsManager) RecordInvocationDuration(ctx context.Context, capability string, duration time.Duration) {
	mm.invocationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("capability", capability),
	))
}

func (mm *MetricsManager) IncrementInvocationErrors(ctx context.Context, capability, errorType string) {
	mm.invocationErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("error", errorType),
	))
}

func (mm *MetricsManager) RecordToolCall(ctx context.Context, tool, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	)
	mm.toolCallsTotal.Add(ctx, 1, attrs)
	mm.toolCallDuration.Record(ctx, duration.Seconds(), attrs)
}

func (mm *MetricsManager) RecordRun(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	mm.runsTotal.Add(ctx, 1, attrs)
	mm.runDuration.Record(ctx, duration.Seconds(), attrs)
}

func (mm *MetricsManager) UpdateSystemMetrics(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.goGoroutines.Record(ctx, int64(runtime.NumGoroutine()))
	mm.goMemstatsAllocBytes.Record(ctx, int64(m.Alloc))
	mm.processSysBytes.Record(ctx, int64(m.Sys))
}

// StartTimer returns a func that records the elapsed invocation time.
func (mm *MetricsManager) StartTimer() func(ctx context.Context, capability string) {
	start := time.Now()
	return func(ctx context.Context, capability string) {
		mm.RecordInvocationDuration(ctx, capability, time.Since(start))
	}
}

// StartSystemMetrics samples runtime metrics every interval until ctx ends.
func (mm *MetricsManager) StartSystemMetrics(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mm.UpdateSystemMetrics(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}
