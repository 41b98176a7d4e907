package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/owulveryck/nexushealth/agents/orchestrator/state"
	"github.com/owulveryck/nexushealth/internal/a2a"
	"github.com/owulveryck/nexushealth/internal/classify"
	"github.com/owulveryck/nexushealth/internal/tool"
	"github.com/owulveryck/nexushealth/internal/transport"
)

const (
	policyDescription = "This is an agent for questions around policy coverage. It uses a RAG pattern to find answers " +
		"based on policy documentation. Use it to help answer questions on coverage and waiting periods."
	healthDescription = "This is a health agent which supports the hospital to handle health based questions for patients, " +
		"such as symptoms and recovery. " +
		"Current or prospective patients can use it to find answers about their health and hospital treatments."
	doctorDescription = "This is a Doctor Agent which helps users find doctors near them."

	compositeQuery = "I think I have the flu, what are the symptoms? Also, find me a doctor in California, and tell me if my Gold Plan 2024 policy covers the consultation."
)

// fleet serves capability servers over in-memory listeners keyed by host.
type fleet struct {
	mu        sync.Mutex
	listeners map[string]*bufconn.Listener
	servers   map[string]*transport.Server
}

func newFleet() *fleet {
	return &fleet{listeners: map[string]*bufconn.Listener{}, servers: map[string]*transport.Server{}}
}

func (f *fleet) serve(t *testing.T, host string, caps ...capability) {
	t.Helper()
	srv, err := transport.NewServer()
	require.NoError(t, err)
	for _, c := range caps {
		require.NoError(t, srv.Register(a2a.Capability{Name: c.name, Description: c.description}, c.handler))
	}
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	f.mu.Lock()
	f.listeners[host] = lis
	f.servers[host] = srv
	f.mu.Unlock()
}

func (f *fleet) stop(host string) {
	f.mu.Lock()
	srv := f.servers[host]
	delete(f.listeners, host)
	f.mu.Unlock()
	srv.Stop()
}

func (f *fleet) option() Option {
	return WithTransportOptions(transport.WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		f.mu.Lock()
		lis, ok := f.listeners[addr]
		f.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("no route to %s", addr)
		}
		return lis.DialContext(ctx)
	})))
}

type capability struct {
	name        string
	description string
	handler     transport.Handler
}

func reply(text string) transport.Handler {
	return func(context.Context, *a2a.Message) (*a2a.Message, error) {
		return a2a.NewTextMessage(a2a.RoleAgent, text), nil
	}
}

type planFunc func(ctx context.Context, query string, tools []tool.Descriptor) ([]Step, error)

func (f planFunc) Plan(ctx context.Context, query string, tools []tool.Descriptor) ([]Step, error) {
	return f(ctx, query, tools)
}

func fixedPlan(steps ...Step) Planner {
	return planFunc(func(context.Context, string, []tool.Descriptor) ([]Step, error) { return steps, nil })
}

func endpoints(hosts ...string) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = "passthrough:///" + h
	}
	return out
}

func hospitalAndInsurer(t *testing.T, f *fleet) {
	t.Helper()
	f.serve(t, "insurer", capability{"policy_agent", policyDescription, reply("Consultations are covered with a 20 dollar copay.")})
	f.serve(t, "hospital",
		capability{"health_agent", healthDescription, reply("Flu symptoms include fever, cough and fatigue.")},
		capability{"doctor_agent", doctorDescription, reply(`[{"name": "Dr John James", "specialty": "Cardiology"}]`)},
	)
}

func TestAsk_ThreePartComposite(t *testing.T) {
	f := newFleet()
	var (
		mu         sync.Mutex
		contextIDs []string
	)
	record := func(text string) transport.Handler {
		return func(_ context.Context, msg *a2a.Message) (*a2a.Message, error) {
			mu.Lock()
			contextIDs = append(contextIDs, msg.ContextID)
			mu.Unlock()
			return a2a.NewTextMessage(a2a.RoleAgent, text), nil
		}
	}
	f.serve(t, "insurer", capability{"policy_agent", policyDescription, record("Consultations are covered with a 20 dollar copay.")})
	f.serve(t, "hospital",
		capability{"health_agent", healthDescription, record("Flu symptoms include fever, cough and fatigue.")},
		capability{"doctor_agent", doctorDescription, record(`[{"name": "Dr John James"}]`)},
	)

	o := New(Config{Endpoints: endpoints("insurer", "hospital")}, f.option())
	res, err := o.Ask(context.Background(), compositeQuery)
	require.NoError(t, err)

	assert.Equal(t, state.StatusCompleted, res.Status)
	assert.Equal(t, []string{"policy_agent", "health_agent", "doctor_agent"}, res.Tools)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, "health_agent", res.Steps[0].Tool)
	assert.Equal(t, "doctor_agent", res.Steps[1].Tool)
	assert.Equal(t, "policy_agent", res.Steps[2].Tool)

	assert.Contains(t, res.Answer, "Flu symptoms include fever")
	assert.Contains(t, res.Answer, "Dr John James")
	assert.Contains(t, res.Answer, "20 dollar copay")
	assert.NotContains(t, res.Answer, "could not be retrieved")

	mu.Lock()
	assert.Equal(t, []string{res.RunID, res.RunID, res.RunID}, contextIDs)
	mu.Unlock()

	run, err := o.Store().Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, compositeQuery, run.Query)
	assert.Equal(t, res.Answer, run.Answer)
	assert.Len(t, run.Steps, 3)
}

func TestAsk_SingleToolNonEmptyAnswer(t *testing.T) {
	f := newFleet()
	f.serve(t, "insurer", capability{"policy_agent", policyDescription, reply("Physiotherapy is covered.")})

	o := New(Config{Endpoints: endpoints("insurer", "hospital")}, f.option())
	res, err := o.Ask(context.Background(), "Is physiotherapy covered?")
	require.NoError(t, err)
	assert.Equal(t, "Physiotherapy is covered.", res.Answer)
	assert.Equal(t, []string{"policy_agent"}, res.Tools)
}

func TestAsk_BlankReplyIsFlagged(t *testing.T) {
	f := newFleet()
	f.serve(t, "hospital", capability{"health_agent", healthDescription, reply("  ")})

	o := New(Config{Endpoints: endpoints("hospital")}, f.option())
	res, err := o.Ask(context.Background(), "What are flu symptoms?")
	require.NoError(t, err)

	assert.NotEmpty(t, strings.TrimSpace(res.Answer))
	assert.Equal(t, `Information on "What are flu symptoms?" could not be retrieved: no answer was produced.`, res.Answer)
	assert.Equal(t, state.StatusFailed, res.Status)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, state.StepFailed, res.Steps[0].Status)
	assert.ErrorIs(t, res.Steps[0].Err, ErrEmptyAnswer)
	assert.Equal(t, 1, res.Steps[0].Attempts, "blank replies are not retried")

	run, err := o.Store().Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "empty_answer", run.Steps[0].ErrorKind)
}

func TestAsk_BlankReplyAmongOthers(t *testing.T) {
	f := newFleet()
	f.serve(t, "hospital",
		capability{"health_agent", healthDescription, reply("")},
		capability{"doctor_agent", doctorDescription, reply(`[{"name": "Dr John James"}]`)},
	)

	o := New(Config{Endpoints: endpoints("hospital")}, f.option(), WithPlanner(fixedPlan(
		Step{Question: "What are flu symptoms?", Tool: "health_agent"},
		Step{Question: "Find me a doctor in CA.", Tool: "doctor_agent", Independent: true},
	)))
	res, err := o.Ask(context.Background(), "What are flu symptoms? Find me a doctor in CA.")
	require.NoError(t, err)

	assert.Equal(t, state.StatusPartial, res.Status)
	assert.NotContains(t, res.Answer, `Regarding "What are flu symptoms?"`)
	assert.Contains(t, res.Answer, "Dr John James")
	assert.Contains(t, res.Answer, `Information on "What are flu symptoms?" could not be retrieved: no answer was produced.`)
}

func TestAsk_NoSpecialists(t *testing.T) {
	var planned atomic.Bool
	planner := planFunc(func(context.Context, string, []tool.Descriptor) ([]Step, error) {
		planned.Store(true)
		return nil, nil
	})

	o := New(Config{Endpoints: endpoints("insurer", "hospital")}, newFleet().option(), WithPlanner(planner))
	res, err := o.Ask(context.Background(), compositeQuery)
	require.ErrorIs(t, err, ErrNoSpecialists)
	require.NotNil(t, res)
	assert.Equal(t, NoSpecialistsMessage, res.Answer)
	assert.Equal(t, state.StatusNoSpecialists, res.Status)
	assert.False(t, planned.Load(), "planning must not run without tools")

	run, err := o.Store().Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusNoSpecialists, run.Status)
}

func TestAsk_PartialFailureIsFlagged(t *testing.T) {
	f := newFleet()
	hospitalAndInsurer(t, f)

	// The hospital goes away after discovery, so its steps fail in transport.
	planner := planFunc(func(ctx context.Context, q string, tools []tool.Descriptor) ([]Step, error) {
		f.stop("hospital")
		return RulePlanner{}.Plan(ctx, q, tools)
	})

	o := New(Config{Endpoints: endpoints("insurer", "hospital")}, f.option(), WithPlanner(planner))
	res, err := o.Ask(context.Background(), compositeQuery)
	require.NoError(t, err)

	assert.Equal(t, state.StatusPartial, res.Status)
	assert.Contains(t, res.Answer, "20 dollar copay")
	assert.Contains(t, res.Answer,
		`Information on "I think I have the flu, what are the symptoms?" could not be retrieved: the specialist could not be reached.`)
	assert.Contains(t, res.Answer,
		`Information on "find me a doctor in California" could not be retrieved: the specialist could not be reached.`)

	require.Len(t, res.Steps, 3)
	assert.Equal(t, state.StepFailed, res.Steps[0].Status)
	assert.ErrorIs(t, res.Steps[0].Err, transport.ErrTransport)
	assert.Equal(t, 2, res.Steps[0].Attempts, "transport errors are retried once")
	assert.Equal(t, 1, res.Steps[2].Attempts)
}

func TestAsk_RemoteFailureNotRetried(t *testing.T) {
	f := newFleet()
	var calls atomic.Int32
	f.serve(t, "hospital", capability{"doctor_agent", doctorDescription, func(context.Context, *a2a.Message) (*a2a.Message, error) {
		calls.Add(1)
		return nil, errors.New("dataset exploded")
	}})

	o := New(Config{Endpoints: endpoints("hospital")}, f.option())
	res, err := o.Ask(context.Background(), "find me a doctor in CA")
	require.NoError(t, err)

	assert.Equal(t, state.StatusFailed, res.Status)
	assert.EqualValues(t, 1, calls.Load())
	assert.Contains(t, res.Answer, "the specialist encountered an error while answering.")
	assert.NotContains(t, res.Answer, "dataset exploded")
}

func TestAsk_DuplicateCapabilityFirstWins(t *testing.T) {
	f := newFleet()
	f.serve(t, "insurer", capability{"policy_agent", policyDescription, reply("from insurer")})
	f.serve(t, "mirror", capability{"policy_agent", policyDescription, reply("from mirror")})

	o := New(Config{Endpoints: endpoints("insurer", "mirror")}, f.option())
	res, err := o.Ask(context.Background(), "Is it covered?")
	require.NoError(t, err)
	assert.Equal(t, []string{"policy_agent"}, res.Tools)
	assert.Equal(t, "from insurer", res.Answer)
}

func TestAsk_IterationBoundSkipsRemaining(t *testing.T) {
	f := newFleet()
	hospitalAndInsurer(t, f)

	plan := fixedPlan(
		Step{Question: "symptoms of flu?", Tool: "health_agent"},
		Step{Question: "doctor in CA?", Tool: "doctor_agent"},
		Step{Question: "is it covered?", Tool: "policy_agent"},
	)
	o := New(Config{Endpoints: endpoints("insurer", "hospital"), MaxIterations: 1}, f.option(), WithPlanner(plan))
	res, err := o.Ask(context.Background(), "three dependent questions")
	require.NoError(t, err)

	require.Len(t, res.Steps, 3)
	assert.Equal(t, state.StepAnswered, res.Steps[0].Status)
	for _, s := range res.Steps[1:] {
		assert.Equal(t, state.StepSkipped, s.Status)
		assert.Equal(t, SkipIterationLimit, s.SkipReason)
		assert.Zero(t, s.Attempts)
	}
	assert.Contains(t, res.Answer, `Information on "doctor in CA?" could not be retrieved: the step limit for this request was reached.`)

	run, err := o.Store().Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.True(t, run.Truncated)
	assert.Equal(t, SkipIterationLimit, run.Steps[1].Error)
}

func TestAsk_ToolCallBoundSkipsRemaining(t *testing.T) {
	f := newFleet()
	hospitalAndInsurer(t, f)

	plan := fixedPlan(
		Step{Question: "symptoms of flu?", Tool: "health_agent"},
		Step{Question: "doctor in CA?", Tool: "doctor_agent", Independent: true},
		Step{Question: "is it covered?", Tool: "policy_agent", Independent: true},
	)
	o := New(Config{Endpoints: endpoints("insurer", "hospital"), MaxToolCalls: 2}, f.option(), WithPlanner(plan))
	res, err := o.Ask(context.Background(), "three independent questions")
	require.NoError(t, err)

	assert.Equal(t, state.StepAnswered, res.Steps[0].Status)
	assert.Equal(t, state.StepAnswered, res.Steps[1].Status)
	assert.Equal(t, state.StepSkipped, res.Steps[2].Status)
	assert.Equal(t, SkipToolCallLimit, res.Steps[2].SkipReason)
	assert.Equal(t, state.StatusPartial, res.Status)
}

func TestAsk_TimeBoundSkipsRemaining(t *testing.T) {
	f := newFleet()
	f.serve(t, "hospital",
		capability{"health_agent", healthDescription, func(ctx context.Context, _ *a2a.Message) (*a2a.Message, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		capability{"doctor_agent", doctorDescription, reply("[]")},
	)

	plan := fixedPlan(
		Step{Question: "symptoms of flu?", Tool: "health_agent"},
		Step{Question: "doctor in CA?", Tool: "doctor_agent"},
	)
	o := New(Config{Endpoints: endpoints("hospital"), Timeout: 300 * time.Millisecond}, f.option(), WithPlanner(plan))

	start := time.Now()
	res, err := o.Ask(context.Background(), "slow then fast")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, state.StepFailed, res.Steps[0].Status)
	assert.Equal(t, state.StepSkipped, res.Steps[1].Status)
	assert.Equal(t, SkipTimeLimit, res.Steps[1].SkipReason)
	assert.Contains(t, res.Answer, `Information on "doctor in CA?" could not be retrieved: the time limit for this request was reached.`)
}

func TestAsk_IndependentStepsRunConcurrently(t *testing.T) {
	var (
		arrived atomic.Int32
		both    = make(chan struct{})
	)
	barrier := func(context.Context, *a2a.Message) (*a2a.Message, error) {
		if arrived.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
			return a2a.NewTextMessage(a2a.RoleAgent, "concurrent"), nil
		case <-time.After(2 * time.Second):
			return a2a.NewTextMessage(a2a.RoleAgent, "sequential"), nil
		}
	}

	f := newFleet()
	f.serve(t, "hospital",
		capability{"health_agent", healthDescription, barrier},
		capability{"doctor_agent", doctorDescription, barrier},
	)
	plan := fixedPlan(
		Step{Question: "a", Tool: "health_agent"},
		Step{Question: "b", Tool: "doctor_agent", Independent: true},
	)

	o := New(Config{Endpoints: endpoints("hospital")}, f.option(), WithPlanner(plan))
	res, err := o.Ask(context.Background(), "two independent questions")
	require.NoError(t, err)
	assert.Equal(t, "concurrent", res.Steps[0].Answer)
	assert.Equal(t, "concurrent", res.Steps[1].Answer)
}

func TestAsk_EmptyQuery(t *testing.T) {
	_, err := New(Config{}).Ask(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestAsk_PersistsToSQLite(t *testing.T) {
	f := newFleet()
	hospitalAndInsurer(t, f)

	store, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	o := New(Config{Endpoints: endpoints("insurer", "hospital")}, f.option(), WithStore(store),
		WithPlanner(RulePlanner{Classifier: classify.Func(func(context.Context, string, []tool.Descriptor) (string, error) {
			return "health_agent", nil
		})}))
	res, err := o.Ask(context.Background(), compositeQuery)
	require.NoError(t, err)

	// Every part went to the same tool, so the plan collapses to one step.
	require.Len(t, res.Steps, 1)
	assert.True(t, strings.HasPrefix(res.Steps[0].Question, "I think I have the flu"))

	runs, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, state.StatusCompleted, runs[0].Status)
	assert.False(t, runs[0].Truncated)
	assert.Equal(t, []string{"policy_agent", "health_agent", "doctor_agent"}, runs[0].Tools)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := New(Config{}).Config()
	assert.Equal(t, 500*time.Second, cfg.Timeout)
	assert.Equal(t, 8, cfg.MaxIterations)
	assert.Equal(t, 8, cfg.MaxToolCalls)
}
