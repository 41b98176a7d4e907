package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestObservabilityHandler_AddsTraceContext(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewObservabilityHandler(slog.NewJSONHandler(&buf, nil), noop.NewMeterProvider().Meter("test"), "svc")
	require.NoError(t, err)
	logger := slog.New(h)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.With("component", "x").InfoContext(ctx, "hello", "k", "v")
	span.End()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "svc", rec["service"])
	assert.Equal(t, "x", rec["component"])
	assert.Equal(t, "v", rec["k"])
	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
}

func TestObservabilityHandler_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewObservabilityHandler(
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}),
		noop.NewMeterProvider().Meter("test"),
		"svc",
	)
	require.NoError(t, err)
	logger := slog.New(h)

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestTraceManager_RecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tm := NewTraceManagerWithProvider(tp, "test")

	_, span := tm.StartInvokeSpan(context.Background(), "localhost:8000", "doctor_agent")
	tm.RecordError(span, errors.New("boom"))
	span.End()

	_, ok := tm.StartSpan(context.Background(), "ok")
	tm.SetSpanSuccess(ok)
	ok.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "capability.invoke", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, codes.Ok, spans[1].Status().Code)
}

func TestMetricsManager_NoopMeter(t *testing.T) {
	mm, err := NewMetricsManager(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	mm.IncrementInvocations(ctx, "policy_agent", true)
	mm.IncrementInvocationErrors(ctx, "policy_agent", "internal")
	mm.RecordToolCall(ctx, "policy_agent", "succeeded", 0)
	mm.RecordRun(ctx, "answered", 0)
	mm.UpdateSystemMetrics(ctx)
	mm.StartTimer()(ctx, "policy_agent")
}

func TestHealthServer_Handler(t *testing.T) {
	hs := NewHealthServer("0", "svc", "1.2.3")
	hs.AddChecker("self", NewBasicHealthChecker("self", func(ctx context.Context) error { return nil }))

	srv := httptest.NewServer(hs.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, HealthStatusHealthy, body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	require.Len(t, body.Checks, 1)

	hs.AddChecker("broken", NewBasicHealthChecker("broken", func(ctx context.Context) error {
		return errors.New("index missing")
	}))

	resp2, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestGRPCHealthChecker(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	checker := NewGRPCHealthChecker("peer", conn)
	assert.Equal(t, HealthStatusHealthy, checker.Check(context.Background()).Status)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	check := checker.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, check.Status)
	assert.Contains(t, check.Message, "NOT_SERVING")
}
