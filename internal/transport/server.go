package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/owulveryck/nexushealth/internal/a2a"
	"github.com/owulveryck/nexushealth/internal/observability"
)

// Handler runs one capability. A returned error, or a panic, reaches the
// caller as a RemoteExecutionError; the server keeps serving.
type Handler func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error)

// ErrDuplicateCapability is returned when a name is registered twice.
var ErrDuplicateCapability = errors.New("capability already registered")

type registration struct {
	capability a2a.Capability
	handler    Handler
}

// Server hosts capabilities behind the gRPC capability service and the
// standard health service.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *slog.Logger
	metrics    *observability.MetricsManager

	mu    sync.RWMutex
	order []string
	caps  map[string]registration
}

type ServerOption func(*Server)

func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func WithServerMetrics(mm *observability.MetricsManager) ServerOption {
	return func(s *Server) { s.metrics = mm }
}

func NewServer(opts ...ServerOption) (*Server, error) {
	s := &Server{
		health: health.NewServer(),
		logger: slog.Default(),
		caps:   make(map[string]registration),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		mm, err := observability.NewMetricsManager(otel.Meter("nexushealth/transport"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics manager: %w", err)
		}
		s.metrics = mm
	}

	s.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	a2a.RegisterCapabilityServiceServer(s.grpcServer, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	return s, nil
}

// Register adds a capability. Discovery lists capabilities in registration order.
func (s *Server) Register(c a2a.Capability, h Handler) error {
	if c.Name == "" {
		return fmt.Errorf("capability name is required")
	}
	if h == nil {
		return fmt.Errorf("capability %q has no handler", c.Name)
	}
	if len(c.InputModes) == 0 {
		c.InputModes = []string{a2a.KindText}
	}
	if len(c.OutputModes) == 0 {
		c.OutputModes = []string{a2a.KindText}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.caps[c.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCapability, c.Name)
	}
	s.caps[c.Name] = registration{capability: c, handler: h}
	s.order = append(s.order, c.Name)
	return nil
}

// Capabilities returns the registered descriptors in registration order.
func (s *Server) Capabilities() []a2a.Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]a2a.Capability, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.caps[name].capability)
	}
	return out
}

func (s *Server) ListCapabilities(ctx context.Context, _ *a2a.ListCapabilitiesRequest) (*a2a.ListCapabilitiesResponse, error) {
	return &a2a.ListCapabilitiesResponse{Capabilities: s.Capabilities()}, nil
}

func (s *Server) Invoke(ctx context.Context, req *a2a.InvokeRequest) (*a2a.InvokeResponse, error) {
	s.mu.RLock()
	reg, ok := s.caps[req.Capability]
	s.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "capability %q is not registered", req.Capability)
	}
	if err := req.Message.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	record := s.metrics.StartTimer()
	defer record(ctx, req.Capability)

	reply, err := s.run(ctx, reg.handler, req.Message)
	if err == nil {
		err = reply.Validate()
	}
	if err != nil {
		s.metrics.IncrementInvocations(ctx, req.Capability, false)
		s.metrics.IncrementInvocationErrors(ctx, req.Capability, "handler")
		s.logger.ErrorContext(ctx, "Capability failed",
			"capability", req.Capability,
			"message_id", req.Message.MessageID,
			"error", err,
		)
		return nil, status.Error(codes.Internal, err.Error())
	}

	s.metrics.IncrementInvocations(ctx, req.Capability, true)
	if reply.Role == "" {
		reply.Role = a2a.RoleAgent
	}
	if reply.ContextID == "" {
		reply.ContextID = req.Message.ContextID
	}
	return &a2a.InvokeResponse{Message: reply}, nil
}

func (s *Server) run(ctx context.Context, h Handler, msg *a2a.Message) (reply *a2a.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, msg)
}

// Serve blocks until the listener fails or the server is stopped.
func (s *Server) Serve(lis net.Listener) error {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("Capability server listening",
		slog.String("address", lis.Addr().String()),
		slog.Int("capabilities", len(s.Capabilities())),
	)
	return s.grpcServer.Serve(lis)
}

// Shutdown stops accepting calls and waits for in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// Stop closes all connections immediately.
func (s *Server) Stop() {
	s.grpcServer.Stop()
}

// DefaultShutdownTimeout bounds graceful shutdown in process mains.
const DefaultShutdownTimeout = 10 * time.Second
