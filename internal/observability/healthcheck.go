package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

type HealthCheck struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
	Duration    string       `json:"duration"`
}

type HealthResponse struct {
	Status  HealthStatus  `json:"status"`
	Checks  []HealthCheck `json:"checks"`
	Version string        `json:"version"`
	Uptime  string        `json:"uptime"`
}

type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
}

type namedChecker struct {
	name    string
	checker HealthChecker
}

type HealthServer struct {
	port        string
	serviceName string
	version     string
	startTime   time.Time

	mu       sync.RWMutex
	checkers []namedChecker
	server   *http.Server
}

func NewHealthServer(port, serviceName, version string) *HealthServer {
	return &HealthServer{
		port:        port,
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
	}
}

// AddChecker registers a checker; checks run in registration order.
func (hs *HealthServer) AddChecker(name string, checker HealthChecker) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.checkers = append(hs.checkers, namedChecker{name: name, checker: checker})
}

// Handler exposes /health, /ready and /metrics.
func (hs *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (hs *HealthServer) Start(ctx context.Context) error {
	hs.mu.Lock()
	hs.server = &http.Server{
		Addr:              ":" + hs.port,
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := hs.server
	hs.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (hs *HealthServer) Shutdown(ctx context.Context) error {
	hs.mu.RLock()
	srv := hs.server
	hs.mu.RUnlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	hs.mu.RLock()
	checkers := append([]namedChecker(nil), hs.checkers...)
	hs.mu.RUnlock()

	response := HealthResponse{
		Status:  HealthStatusHealthy,
		Version: hs.version,
		Uptime:  time.Since(hs.startTime).String(),
		Checks:  make([]HealthCheck, 0, len(checkers)),
	}

	for _, c := range checkers {
		check := c.checker.Check(ctx)
		response.Checks = append(response.Checks, check)

		if check.Status != HealthStatusHealthy {
			response.Status = HealthStatusUnhealthy
		}
	}

	statusCode := http.StatusOK
	if response.Status != HealthStatusHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

type BasicHealthChecker struct {
	name    string
	checkFn func(ctx context.Context) error
}

func NewBasicHealthChecker(name string, checkFn func(ctx context.Context) error) *BasicHealthChecker {
	return &BasicHealthChecker{
		name:    name,
		checkFn: checkFn,
	}
}

func (bhc *BasicHealthChecker) Check(ctx context.Context) HealthCheck {
	start := time.Now()

	check := HealthCheck{
		Name:        bhc.name,
		LastChecked: start,
	}

	if err := bhc.checkFn(ctx); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = err.Error()
	} else {
		check.Status = HealthStatusHealthy
	}

	check.Duration = time.Since(start).String()
	return check
}

// GRPCHealthChecker probes a peer with the standard grpc.health.v1 protocol.
type GRPCHealthChecker struct {
	checkerName string
	client      healthpb.HealthClient
	service     string
	timeout     time.Duration
}

func NewGRPCHealthChecker(name string, conn grpc.ClientConnInterface) *GRPCHealthChecker {
	return &GRPCHealthChecker{
		checkerName: name,
		client:      healthpb.NewHealthClient(conn),
		timeout:     2 * time.Second,
	}
}

func (ghc *GRPCHealthChecker) Check(ctx context.Context) HealthCheck {
	start := time.Now()

	check := HealthCheck{
		Name:        ghc.checkerName,
		LastChecked: start,
		Status:      HealthStatusHealthy,
	}

	ctx, cancel := context.WithTimeout(ctx, ghc.timeout)
	defer cancel()

	resp, err := ghc.client.Check(ctx, &healthpb.HealthCheckRequest{Service: ghc.service})
	switch {
	case err != nil:
		check.Status = HealthStatusUnhealthy
		check.Message = err.Error()
	case resp.GetStatus() != healthpb.HealthCheckResponse_SERVING:
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("peer reports %s", resp.GetStatus())
	}

	check.Duration = time.Since(start).String()
	return check
}
