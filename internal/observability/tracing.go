package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type TraceManager struct {
	tracer trace.Tracer
}

func NewTraceManager(serviceName string) *TraceManager {
	return &TraceManager{
		tracer: otel.Tracer(serviceName),
	}
}

// NewTraceManagerWithProvider is used by tests that record spans locally.
func NewTraceManagerWithProvider(tp trace.TracerProvider, serviceName string) *TraceManager {
	return &TraceManager{
		tracer: tp.Tracer(serviceName),
	}
}

func (tm *TraceManager) StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, operationName, trace.WithAttributes(attrs...))
}

// StartInvokeSpan starts a client-side span for one capability call.
func (tm *TraceManager) StartInvokeSpan(ctx context.Context, endpoint, capability string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "capability.invoke", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("rpc.system", "grpc"),
		attribute.String("a2a.endpoint", endpoint),
		attribute.String("a2a.capability", capability),
	))
}

// StartHandleSpan starts a server-side span for one capability execution.
func (tm *TraceManager) StartHandleSpan(ctx context.Context, agentID, capability string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "agent."+agentID+".handle", trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(
		attribute.String("a2a.agent", agentID),
		attribute.String("a2a.capability", capability),
	))
}

func (tm *TraceManager) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (tm *TraceManager) SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds a timestamped event to a span for tracking processing steps
func (tm *TraceManager) AddSpanEvent(span trace.Span, eventName string, attributes ...attribute.KeyValue) {
	span.AddEvent(eventName, trace.WithAttributes(attributes...))
}

// AddComponentAttribute adds a component identifier to a span
func (tm *TraceManager) AddComponentAttribute(span trace.Span, component string) {
	span.SetAttributes(attribute.String("nexushealth.component", component))
}

// AddMessageAttributes records the envelope of an A2A message on a span.
func (tm *TraceManager) AddMessageAttributes(span trace.Span, messageID, contextID, role string, parts int) {
	span.SetAttributes(
		attribute.String("a2a.message.id", messageID),
		attribute.String("a2a.message.role", role),
		attribute.Int("a2a.message.parts", parts),
	)

	if contextID != "" {
		span.SetAttributes(attribute.String("a2a.context.id", contextID))
	}
}
