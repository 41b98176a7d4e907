package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/owulveryck/nexushealth/agents/orchestrator/state"
	"github.com/owulveryck/nexushealth/internal/llm"
	"github.com/owulveryck/nexushealth/internal/transport"
)

// FailureNoteFormat flags a sub-question that has no answer.
const FailureNoteFormat = `Information on "%s" could not be retrieved: %s`

// Synthesizer merges step results into the final answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, results []StepResult) (string, error)
}

// TemplateSynthesizer concatenates answers in plan order and appends one
// plain-language note per failed or skipped step.
type TemplateSynthesizer struct{}

func (TemplateSynthesizer) Synthesize(_ context.Context, _ string, results []StepResult) (string, error) {
	var answered []StepResult
	for _, r := range results {
		if r.Status == state.StepAnswered && strings.TrimSpace(r.Answer) != "" {
			answered = append(answered, r)
		}
	}

	var sections []string
	if len(answered) == 1 && len(results) == 1 {
		sections = append(sections, strings.TrimSpace(answered[0].Answer))
	} else {
		for _, r := range answered {
			sections = append(sections, fmt.Sprintf("Regarding \"%s\":\n%s", r.Question, strings.TrimSpace(r.Answer)))
		}
	}
	if notes := FailureNotes(results); notes != "" {
		sections = append(sections, notes)
	}
	if len(sections) == 0 {
		return "No answer could be produced for this request.", nil
	}
	return strings.Join(sections, "\n\n"), nil
}

// FailureNotes returns the notes for every step without an answer, one per
// line, or "" when all steps were answered.
func FailureNotes(results []StepResult) string {
	var notes []string
	for _, r := range results {
		if r.Status == state.StepAnswered && strings.TrimSpace(r.Answer) != "" {
			continue
		}
		notes = append(notes, fmt.Sprintf(FailureNoteFormat, r.Question, failureReason(r)))
	}
	return strings.Join(notes, "\n")
}

func failureReason(r StepResult) string {
	switch r.SkipReason {
	case SkipTimeLimit:
		return "the time limit for this request was reached."
	case SkipIterationLimit:
		return "the step limit for this request was reached."
	case SkipToolCallLimit:
		return "the limit on specialist calls for this request was reached."
	}

	switch {
	case r.Err == nil, errors.Is(r.Err, ErrEmptyAnswer):
		return "no answer was produced."
	case isContextError(r.Err) && !errors.Is(r.Err, transport.ErrTransport):
		return "the time limit for this request was reached."
	case errors.Is(r.Err, transport.ErrTransport):
		return "the specialist could not be reached."
	case errors.Is(r.Err, transport.ErrCapabilityNotFound):
		return "the specialist no longer offers this service."
	case errors.Is(r.Err, transport.ErrRemoteExecution):
		return "the specialist encountered an error while answering."
	default:
		return "an unexpected error occurred."
	}
}

const synthesisPrompt = `You are a Master Health Assistant. Combine the specialist answers below into one
complete, consolidated answer that addresses every part of the user's request.
Do not add facts that are not in the specialist answers.`

// LLMSynthesizer asks a model to write the final answer. On failure it
// falls back to TemplateSynthesizer. Failure notes are always appended
// verbatim so they cannot be lost in the rewrite.
type LLMSynthesizer struct {
	Client llm.Client
	Logger *slog.Logger
}

func (s LLMSynthesizer) Synthesize(ctx context.Context, query string, results []StepResult) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n\nSpecialist answers:\n", query)
	answered := 0
	for _, r := range results {
		if r.Status != state.StepAnswered || strings.TrimSpace(r.Answer) == "" {
			continue
		}
		answered++
		fmt.Fprintf(&b, "\nQuestion: %s\nSpecialist: %s\nAnswer: %s\n", r.Question, r.Tool, r.Answer)
	}
	if answered == 0 {
		return TemplateSynthesizer{}.Synthesize(ctx, query, results)
	}

	answer, err := s.Client.Generate(ctx, llm.Request{System: synthesisPrompt, Prompt: b.String()})
	if err != nil || strings.TrimSpace(answer) == "" {
		logger := s.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.WarnContext(ctx, "LLM synthesis failed, using template", "error", err)
		return TemplateSynthesizer{}.Synthesize(ctx, query, results)
	}

	answer = strings.TrimSpace(answer)
	if notes := FailureNotes(results); notes != "" {
		answer += "\n\n" + notes
	}
	return answer, nil
}
