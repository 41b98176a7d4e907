// Package orchestrator answers composite questions by discovering the
// capabilities of remote specialists, planning one step per sub-question,
// running the steps within fixed bounds and merging the answers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/owulveryck/nexushealth/agents/orchestrator/state"
	"github.com/owulveryck/nexushealth/internal/a2a"
	"github.com/owulveryck/nexushealth/internal/classify"
	"github.com/owulveryck/nexushealth/internal/config"
	"github.com/owulveryck/nexushealth/internal/llm"
	"github.com/owulveryck/nexushealth/internal/observability"
	"github.com/owulveryck/nexushealth/internal/tool"
	"github.com/owulveryck/nexushealth/internal/transport"
)

const (
	DefaultTimeout       = 500 * time.Second
	DefaultMaxIterations = 8
	DefaultMaxToolCalls  = 8

	// NoSpecialistsMessage is the answer when discovery finds no tools.
	NoSpecialistsMessage = "No specialists available: none of the configured agents could be reached, " +
		"so this request could not be answered. Please make sure the agent servers are running."
)

// ErrNoSpecialists is returned when no endpoint yields a capability.
var ErrNoSpecialists = errors.New("no specialists available")

// Config bounds and locates one orchestrator. The model behind the LLM
// planner, classifier and synthesizer is set by config.LLMConfig.
type Config struct {
	Timeout       time.Duration
	MaxIterations int
	MaxToolCalls  int
	Endpoints     []string
	// CallTimeout bounds each remote call; zero keeps the transport default.
	CallTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:       DefaultTimeout,
		MaxIterations: DefaultMaxIterations,
		MaxToolCalls:  DefaultMaxToolCalls,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.MaxToolCalls <= 0 {
		c.MaxToolCalls = d.MaxToolCalls
	}
	return c
}

// Orchestrator is safe for concurrent Ask calls; each call gets its own
// session of tools.
type Orchestrator struct {
	config        Config
	planner       Planner
	synthesizer   Synthesizer
	store         state.Store
	transportOpts []transport.Option
	logger        *slog.Logger
	traces        *observability.TraceManager
	metrics       *observability.MetricsManager
}

type Option func(*Orchestrator)

func WithPlanner(p Planner) Option         { return func(o *Orchestrator) { o.planner = p } }
func WithSynthesizer(s Synthesizer) Option { return func(o *Orchestrator) { o.synthesizer = s } }
func WithStore(s state.Store) Option       { return func(o *Orchestrator) { o.store = s } }
func WithLogger(l *slog.Logger) Option     { return func(o *Orchestrator) { o.logger = l } }

// WithTransportOptions adds options applied to every endpoint client.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *Orchestrator) { o.transportOpts = append(o.transportOpts, opts...) }
}

func WithTraceManager(tm *observability.TraceManager) Option {
	return func(o *Orchestrator) { o.traces = tm }
}

func WithMetrics(mm *observability.MetricsManager) Option {
	return func(o *Orchestrator) { o.metrics = mm }
}

// New builds an orchestrator. Without options it plans with RulePlanner
// and the keyword classifier, synthesizes with the template and keeps
// history in memory.
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config:      cfg.withDefaults(),
		planner:     RulePlanner{Classifier: classify.Keyword{}},
		synthesizer: TemplateSynthesizer{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = state.NewMemoryStore()
	}
	if o.traces == nil {
		o.traces = observability.NewTraceManager("orchestrator")
	}
	return o
}

// FromConfig builds an orchestrator with the planner, classifier and
// synthesizer cfg selects. client may be nil when none of them uses a model.
func FromConfig(cfg *config.Config, client llm.Client, opts ...Option) (*Orchestrator, error) {
	oc := cfg.Orchestrator
	needsLLM := oc.Planner == "llm" || oc.Classifier == "llm" || oc.Synthesizer == "llm"
	if needsLLM && client == nil {
		return nil, errors.New("an LLM client is required by the configured planner, classifier or synthesizer")
	}

	var classifier classify.Classifier = classify.Keyword{}
	if oc.Classifier == "llm" {
		classifier = classify.LLM{Client: client}
	}
	var planner Planner = RulePlanner{Classifier: classifier}
	if oc.Planner == "llm" {
		planner = LLMPlanner{Client: client, Classifier: classifier}
	}
	var synthesizer Synthesizer = TemplateSynthesizer{}
	if oc.Synthesizer == "llm" {
		synthesizer = LLMSynthesizer{Client: client}
	}

	base := []Option{WithPlanner(planner), WithSynthesizer(synthesizer)}
	return New(Config{
		Timeout:       oc.Timeout,
		MaxIterations: oc.MaxIterations,
		MaxToolCalls:  oc.MaxToolCalls,
		Endpoints:     oc.Endpoints,
		CallTimeout:   oc.CallTimeout,
	}, append(base, opts...)...), nil
}

func (o *Orchestrator) Config() Config     { return o.config }
func (o *Orchestrator) Store() state.Store { return o.store }

// Session holds the tools discovered for one query and the clients behind
// them. Close releases the clients.
type Session struct {
	tools   *tool.Set
	clients []*transport.Client
}

func (s *Session) Tools() *tool.Set { return s.tools }

func (s *Session) Close() error {
	var errs []error
	for _, c := range s.clients {
		errs = append(errs, c.Close())
	}
	s.clients = nil
	return errors.Join(errs...)
}

// Discover lists the capabilities of every endpoint and wraps each one in a
// delegate tool. Unreachable endpoints are logged and skipped. A capability
// name already provided by an earlier endpoint is skipped too, so discovery
// order decides. With no tools at all it returns ErrNoSpecialists.
func (o *Orchestrator) Discover(ctx context.Context) (*Session, error) {
	session := &Session{tools: &tool.Set{}}

	opts := append([]transport.Option{
		transport.WithLogger(o.logger),
		transport.WithTraceManager(o.traces),
		transport.WithCallTimeout(o.config.CallTimeout),
	}, o.transportOpts...)

	for _, endpoint := range o.config.Endpoints {
		client, err := transport.Dial(endpoint, opts...)
		if err != nil {
			o.logger.WarnContext(ctx, "Skipping endpoint", "endpoint", endpoint, "error", err)
			continue
		}

		var caps []a2a.Capability
		for c, err := range client.ListCapabilities(ctx) {
			if err != nil {
				o.logger.WarnContext(ctx, "Skipping unreachable endpoint",
					"endpoint", endpoint, "error_kind", transport.ErrorKind(err), "error", err)
				caps = nil
				break
			}
			caps = append(caps, c)
		}

		added := 0
		for _, c := range caps {
			if err := session.tools.Add(tool.NewDelegate(client, c)); err != nil {
				o.logger.WarnContext(ctx, "Skipping duplicate capability", "endpoint", endpoint, "capability", c.Name)
				continue
			}
			added++
			o.logger.InfoContext(ctx, "Found agent", "endpoint", endpoint, "capability", c.Name)
		}
		if added == 0 {
			_ = client.Close()
			continue
		}
		session.clients = append(session.clients, client)
	}

	if session.tools.Len() == 0 {
		return nil, ErrNoSpecialists
	}
	return session, nil
}

// Result is the outcome of one Ask.
type Result struct {
	RunID  string
	Query  string
	Answer string
	Status string
	Tools  []string
	Steps  []StepResult
}

// Ask answers query. With no reachable specialists it returns a Result
// carrying NoSpecialistsMessage together with ErrNoSpecialists, and no
// planning happens. Step failures are reported in the answer, not as an
// error. Every run is recorded in the store.
func (o *Orchestrator) Ask(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	res := &Result{RunID: xid.New().String(), Query: query}
	started := time.Now()

	ctx, span := o.traces.StartSpan(ctx, "orchestrator.ask",
		attribute.String("run_id", res.RunID),
		attribute.Int("endpoints", len(o.config.Endpoints)),
	)
	defer span.End()
	o.traces.AddComponentAttribute(span, "orchestrator")

	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()
	ctx = tool.WithContextID(ctx, res.RunID)

	defer func() {
		o.save(ctx, res, started)
		if o.metrics != nil {
			o.metrics.RecordRun(ctx, res.Status, time.Since(started))
		}
	}()

	session, err := o.Discover(ctx)
	if err != nil {
		res.Status = state.StatusNoSpecialists
		res.Answer = NoSpecialistsMessage
		o.traces.RecordError(span, err)
		o.logger.ErrorContext(ctx, "No agents found", "endpoints", o.config.Endpoints)
		return res, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			o.logger.WarnContext(ctx, "Error releasing session", "error", err)
		}
	}()

	for _, t := range session.tools.Tools() {
		res.Tools = append(res.Tools, t.Name())
	}
	o.traces.AddSpanEvent(span, "tools_discovered", attribute.StringSlice("tools", res.Tools))

	steps, err := o.planner.Plan(ctx, query, session.tools.Descriptors())
	if err != nil {
		res.Status = state.StatusFailed
		o.traces.RecordError(span, err)
		return nil, fmt.Errorf("planning: %w", err)
	}
	o.traces.AddSpanEvent(span, "plan_ready", attribute.Int("steps", len(steps)))
	o.logger.InfoContext(ctx, "Plan ready", "run_id", res.RunID, "steps", len(steps))

	exec := &executor{
		tools:         session.tools,
		maxIterations: o.config.MaxIterations,
		maxToolCalls:  o.config.MaxToolCalls,
		logger:        o.logger,
		metrics:       o.metrics,
	}
	res.Steps = exec.run(ctx, steps)

	answer, err := o.synthesizer.Synthesize(ctx, query, res.Steps)
	if err != nil {
		o.logger.WarnContext(ctx, "Synthesis failed, using template", "error", err)
		answer, _ = TemplateSynthesizer{}.Synthesize(ctx, query, res.Steps)
	}
	res.Answer = answer
	res.Status = runStatus(res.Steps)

	o.traces.SetSpanSuccess(span)
	o.logger.InfoContext(ctx, "Run complete",
		"run_id", res.RunID,
		"status", res.Status,
		"iterations", exec.iterations,
		"tool_calls", exec.calls,
		"duration", time.Since(started),
	)
	return res, nil
}

func runStatus(results []StepResult) string {
	answered := 0
	for _, r := range results {
		if r.Status == state.StepAnswered {
			answered++
		}
	}
	switch {
	case answered == len(results):
		return state.StatusCompleted
	case answered == 0:
		return state.StatusFailed
	default:
		return state.StatusPartial
	}
}

func (o *Orchestrator) save(ctx context.Context, res *Result, started time.Time) {
	run := &state.Run{
		ID:         res.RunID,
		Query:      res.Query,
		Answer:     res.Answer,
		Status:     res.Status,
		Tools:      res.Tools,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	for _, r := range res.Steps {
		s := state.Step{
			Question: r.Question,
			Tool:     r.Tool,
			Status:   r.Status,
			Answer:   r.Answer,
			Attempts: r.Attempts,
			Duration: r.Duration,
		}
		if r.Err != nil {
			s.Error = r.Err.Error()
			s.ErrorKind = errorKind(r.Err)
		}
		if r.SkipReason != "" {
			s.Error = r.SkipReason
			run.Truncated = true
		}
		run.Steps = append(run.Steps, s)
	}

	// The run deadline may have passed; the record is still written.
	if err := o.store.Save(context.WithoutCancel(ctx), run); err != nil {
		o.logger.ErrorContext(ctx, "Failed to save run record", "run_id", res.RunID, "error", err)
	}
}
