package subagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/owulveryck/nexushealth/internal/a2a"
	"github.com/owulveryck/nexushealth/internal/observability"
	"github.com/owulveryck/nexushealth/internal/transport"
)

// SubAgent is the process shell shared by every capability provider
type SubAgent struct {
	config  *Config
	skills  []*Skill
	byName  map[string]*Skill
	checks  []namedCheck
	obs     *observability.Observability
	logger  *slog.Logger
	traces  *observability.TraceManager
	metrics *observability.MetricsManager
	server  *transport.Server
	health  *observability.HealthServer

	mu      sync.Mutex
	running bool
}

type namedCheck struct {
	name    string
	checker observability.HealthChecker
}

type Option func(*SubAgent)

// WithLogger skips process observability setup and logs to logger. Metrics
// and traces then go to whatever otel providers are installed globally.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SubAgent) { s.logger = logger }
}

// New creates a new SubAgent with the given configuration
func New(config *Config, opts ...Option) (*SubAgent, error) {
	// Apply defaults and validate
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &SubAgent{
		config: config,
		byName: make(map[string]*Skill),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AddSkill registers a new skill. Skills are advertised in registration order.
func (s *SubAgent) AddSkill(name, description string, handler transport.Handler) error {
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSkill, name)
	}

	skill := &Skill{
		Name:        name,
		Description: description,
		Handler:     handler,
	}
	s.skills = append(s.skills, skill)
	s.byName[name] = skill
	return nil
}

// MustAddSkill is like AddSkill but panics on error (for cleaner initialization code)
func (s *SubAgent) MustAddSkill(name, description string, handler transport.Handler) {
	if err := s.AddSkill(name, description, handler); err != nil {
		panic(err)
	}
}

// AddHealthCheck adds a readiness check served on the health port.
func (s *SubAgent) AddHealthCheck(name string, check func(ctx context.Context) error) {
	s.checks = append(s.checks, namedCheck{name: name, checker: observability.NewBasicHealthChecker(name, check)})
}

// Run listens on the configured address and serves until the context is
// cancelled or the process receives SIGINT or SIGTERM.
func (s *SubAgent) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve is Run on an existing listener. It handles the full lifecycle:
// setup, serving and graceful shutdown.
func (s *SubAgent) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAgentAlreadyRunning
	}
	if len(s.skills) == 0 {
		s.mu.Unlock()
		return ErrNoSkills
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := s.initialize(ctx); err != nil {
		_ = lis.Close()
		return fmt.Errorf("failed to initialize agent: %w", err)
	}

	// Ensure cleanup happens
	defer s.shutdown()

	errCh := make(chan error, 2)
	go func() { errCh <- s.server.Serve(lis) }()
	if s.health != nil {
		go func() {
			if err := s.health.Start(ctx); err != nil {
				errCh <- fmt.Errorf("health server: %w", err)
			}
		}()
	}

	s.logger.InfoContext(ctx, "Agent started successfully",
		"service", s.config.ServiceName,
		"addr", lis.Addr().String(),
		"skills", len(s.skills),
	)

	select {
	case <-ctx.Done():
		s.logger.InfoContext(context.Background(), "Agent shutting down gracefully",
			"service", s.config.ServiceName,
		)
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

// initialize sets up observability, the capability server and the health server
func (s *SubAgent) initialize(ctx context.Context) error {
	if s.logger == nil {
		obsConfig := observability.DefaultConfig(s.config.ServiceName)
		obsConfig.ServiceVersion = s.config.Version
		obsConfig.OTLPEndpoint = s.config.OTLPEndpoint
		obsConfig.HealthPort = s.config.HealthPort
		obsConfig.Environment = s.config.Environment
		obsConfig.LogLevel = s.config.LogLevel

		obs, err := observability.NewObservability(ctx, obsConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize observability: %w", err)
		}
		s.obs = obs
		s.logger = obs.Logger
	}

	metrics, err := observability.NewMetricsManager(otel.Meter(s.config.ServiceName))
	if err != nil {
		return fmt.Errorf("failed to initialize metrics manager: %w", err)
	}
	s.metrics = metrics
	s.traces = observability.NewTraceManager(s.config.ServiceName)

	server, err := transport.NewServer(
		transport.WithServerLogger(s.logger),
		transport.WithServerMetrics(metrics),
	)
	if err != nil {
		return err
	}
	for _, skill := range s.skills {
		capability := a2a.Capability{Name: skill.Name, Description: skill.Description}
		if err := server.Register(capability, s.wrapHandlerWithObservability(skill.Name, skill.Handler)); err != nil {
			return err
		}
		s.logger.DebugContext(ctx, "Registered capability", "skill", skill.Name)
	}
	s.server = server

	if s.config.HealthPort != "" {
		s.health = observability.NewHealthServer(s.config.HealthPort, s.config.ServiceName, s.config.Version)
		s.health.AddChecker("capabilities", observability.NewBasicHealthChecker("capabilities", func(context.Context) error {
			if len(server.Capabilities()) == 0 {
				return errors.New("no capabilities registered")
			}
			return nil
		}))
		for _, c := range s.checks {
			s.health.AddChecker(c.name, c.checker)
		}
		s.metrics.StartSystemMetrics(ctx, 15*time.Second)
	}
	return nil
}

func (s *SubAgent) shutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), transport.DefaultShutdownTimeout)
	defer shutdownCancel()

	s.server.Shutdown(shutdownCtx)
	if s.health != nil {
		if err := s.health.Shutdown(shutdownCtx); err != nil {
			s.logger.ErrorContext(shutdownCtx, "Error during health server shutdown", "error", err)
		}
	}
	if s.obs != nil {
		if err := s.obs.Shutdown(shutdownCtx); err != nil {
			s.logger.ErrorContext(shutdownCtx, "Error during observability shutdown", "error", err)
		}
	}
}

// wrapHandlerWithObservability wraps a handler with automatic tracing and logging
func (s *SubAgent) wrapHandlerWithObservability(skillName string, handler transport.Handler) transport.Handler {
	return func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		ctx, span := s.traces.StartHandleSpan(ctx, s.config.ServiceName, skillName)
		defer span.End()

		s.traces.AddMessageAttributes(span, msg.MessageID, msg.ContextID, string(msg.Role), len(msg.Parts))
		s.traces.AddComponentAttribute(span, s.config.ServiceName)

		s.logger.InfoContext(ctx, "Processing request",
			"skill", skillName,
			"message_id", msg.MessageID,
			"context_id", msg.ContextID,
		)

		start := time.Now()
		reply, err := handler(ctx, msg)
		if err != nil {
			s.traces.RecordError(span, err)
			s.logger.ErrorContext(ctx, "Request failed",
				"skill", skillName,
				"message_id", msg.MessageID,
				"error", err,
			)
			return nil, err
		}

		s.traces.SetSpanSuccess(span)
		s.logger.InfoContext(ctx, "Request completed successfully",
			"skill", skillName,
			"message_id", msg.MessageID,
			"duration", time.Since(start),
		)
		return reply, nil
	}
}

// GetLogger returns the agent's logger for custom logging needs
func (s *SubAgent) GetLogger() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// GetConfig returns the agent configuration
func (s *SubAgent) GetConfig() *Config {
	return s.config
}

// Skills returns the registered skills in registration order.
func (s *SubAgent) Skills() []Skill {
	out := make([]Skill, len(s.skills))
	for i, skill := range s.skills {
		out[i] = *skill
	}
	return out
}
