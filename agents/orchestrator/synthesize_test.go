package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owulveryck/nexushealth/agents/orchestrator/state"
	"github.com/owulveryck/nexushealth/internal/llm"
	"github.com/owulveryck/nexushealth/internal/transport"
)

func answered(q, tool, answer string) StepResult {
	return StepResult{Step: Step{Question: q, Tool: tool}, Status: state.StepAnswered, Answer: answer, Attempts: 1}
}

func failed(q, tool string, err error) StepResult {
	return StepResult{Step: Step{Question: q, Tool: tool}, Status: state.StepFailed, Err: err, Attempts: 1}
}

func skipped(q, tool, reason string) StepResult {
	return StepResult{Step: Step{Question: q, Tool: tool}, Status: state.StepSkipped, SkipReason: reason}
}

func TestTemplateSynthesizer(t *testing.T) {
	ctx := context.Background()

	t.Run("single answer is returned as is", func(t *testing.T) {
		got, err := TemplateSynthesizer{}.Synthesize(ctx, "q", []StepResult{answered("q", "health_agent", " Rest and fluids. ")})
		require.NoError(t, err)
		assert.Equal(t, "Rest and fluids.", got)
	})

	t.Run("answers in plan order", func(t *testing.T) {
		got, err := TemplateSynthesizer{}.Synthesize(ctx, "q", []StepResult{
			answered("flu symptoms?", "health_agent", "Fever."),
			answered("doctor in CA?", "doctor_agent", "Dr John James."),
		})
		require.NoError(t, err)
		assert.Equal(t, "Regarding \"flu symptoms?\":\nFever.\n\nRegarding \"doctor in CA?\":\nDr John James.", got)
	})

	t.Run("failures are flagged", func(t *testing.T) {
		got, err := TemplateSynthesizer{}.Synthesize(ctx, "q", []StepResult{
			answered("flu symptoms?", "health_agent", "Fever."),
			failed("doctor in CA?", "doctor_agent", &transport.TransportError{Endpoint: "hospital:50051", Err: errors.New("refused")}),
		})
		require.NoError(t, err)
		assert.Equal(t, "Regarding \"flu symptoms?\":\nFever.\n\n"+
			`Information on "doctor in CA?" could not be retrieved: the specialist could not be reached.`, got)
	})

	t.Run("blank answers are flagged", func(t *testing.T) {
		got, err := TemplateSynthesizer{}.Synthesize(ctx, "q", []StepResult{answered("flu symptoms?", "health_agent", " \n")})
		require.NoError(t, err)
		assert.Equal(t, `Information on "flu symptoms?" could not be retrieved: no answer was produced.`, got)

		got, err = TemplateSynthesizer{}.Synthesize(ctx, "q", []StepResult{failed("flu symptoms?", "health_agent", ErrEmptyAnswer)})
		require.NoError(t, err)
		assert.Equal(t, `Information on "flu symptoms?" could not be retrieved: no answer was produced.`, got)
	})

	t.Run("nothing answered", func(t *testing.T) {
		got, err := TemplateSynthesizer{}.Synthesize(ctx, "q", nil)
		require.NoError(t, err)
		assert.Equal(t, "No answer could be produced for this request.", got)
	})
}

func TestFailureNotes(t *testing.T) {
	results := []StepResult{
		answered("a", "policy_agent", "yes"),
		failed("b", "policy_agent", &transport.CapabilityNotFoundError{Endpoint: "insurer", Capability: "policy_agent"}),
		failed("c", "health_agent", &transport.RemoteExecutionError{Endpoint: "hospital", Capability: "health_agent", Message: "boom"}),
		failed("d", "health_agent", context.DeadlineExceeded),
		failed("e", "health_agent", fmt.Errorf("no tool named %q", "x")),
		skipped("f", "doctor_agent", SkipTimeLimit),
		skipped("g", "doctor_agent", SkipIterationLimit),
		skipped("h", "doctor_agent", SkipToolCallLimit),
	}
	want := `Information on "b" could not be retrieved: the specialist no longer offers this service.
Information on "c" could not be retrieved: the specialist encountered an error while answering.
Information on "d" could not be retrieved: the time limit for this request was reached.
Information on "e" could not be retrieved: an unexpected error occurred.
Information on "f" could not be retrieved: the time limit for this request was reached.
Information on "g" could not be retrieved: the step limit for this request was reached.
Information on "h" could not be retrieved: the limit on specialist calls for this request was reached.`
	assert.Equal(t, want, FailureNotes(results))
	assert.Empty(t, FailureNotes(results[:1]))
}

func TestLLMSynthesizer(t *testing.T) {
	ctx := context.Background()
	results := []StepResult{
		answered("flu symptoms?", "health_agent", "Fever."),
		skipped("doctor in CA?", "doctor_agent", SkipToolCallLimit),
	}
	note := `Information on "doctor in CA?" could not be retrieved: the limit on specialist calls for this request was reached.`

	t.Run("model answer keeps failure notes", func(t *testing.T) {
		client := llm.FixedResponse("  You likely have the flu: expect a fever.  ")
		got, err := LLMSynthesizer{Client: client}.Synthesize(ctx, "help", results)
		require.NoError(t, err)
		assert.Equal(t, "You likely have the flu: expect a fever.\n\n"+note, got)
		assert.Contains(t, client.LastRequest.Prompt, "Specialist: health_agent")
		assert.NotContains(t, client.LastRequest.Prompt, "doctor_agent")
	})

	t.Run("model error uses template", func(t *testing.T) {
		client := llm.NewMockClientWithFunc(func(context.Context, llm.Request) (string, error) {
			return "", errors.New("model unavailable")
		})
		got, err := LLMSynthesizer{Client: client}.Synthesize(ctx, "help", results)
		require.NoError(t, err)
		assert.Equal(t, "Regarding \"flu symptoms?\":\nFever.\n\n"+note, got)
	})

	t.Run("blank model answer uses template", func(t *testing.T) {
		got, err := LLMSynthesizer{Client: llm.FixedResponse(" \n")}.Synthesize(ctx, "help", results)
		require.NoError(t, err)
		assert.Contains(t, got, "Fever.")
	})

	t.Run("no answers skips the model", func(t *testing.T) {
		client := llm.NewMockClient()
		got, err := LLMSynthesizer{Client: client}.Synthesize(ctx, "help", results[1:])
		require.NoError(t, err)
		assert.Equal(t, note, got)
		assert.Zero(t, client.Calls())
	})
}
