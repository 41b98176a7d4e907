package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/owulveryck/nexushealth/agents/orchestrator/state"
	"github.com/owulveryck/nexushealth/internal/observability"
	"github.com/owulveryck/nexushealth/internal/tool"
	"github.com/owulveryck/nexushealth/internal/transport"
)

// Reasons a step was skipped.
const (
	SkipTimeLimit      = "time_limit"
	SkipIterationLimit = "iteration_limit"
	SkipToolCallLimit  = "tool_call_limit"
)

// ErrEmptyAnswer marks a step whose specialist replied with no content.
var ErrEmptyAnswer = errors.New("specialist returned an empty answer")

// StepResult is the outcome of one executed, failed or skipped step.
type StepResult struct {
	Step
	Status     string // one of state.StepAnswered, StepFailed, StepSkipped
	Answer     string
	Err        error
	SkipReason string
	Attempts   int
	Duration   time.Duration
}

// executor runs a plan within the iteration and tool-call bounds. An
// iteration is one scheduling round: a single step, or a run of consecutive
// independent steps executed concurrently. Every attempt, retries included,
// is a tool call.
type executor struct {
	tools         *tool.Set
	maxIterations int
	maxToolCalls  int
	logger        *slog.Logger
	metrics       *observability.MetricsManager

	iterations int
	calls      int
}

type pending struct {
	index  int
	tool   tool.Tool
	future *tool.Future
	start  time.Time
}

func (e *executor) run(ctx context.Context, steps []Step) []StepResult {
	results := make([]StepResult, len(steps))
	for i, s := range steps {
		results[i] = StepResult{Step: s}
	}

	for start := 0; start < len(steps); {
		end := start + 1
		for end < len(steps) && steps[end].Independent {
			end++
		}

		if reason := e.exhausted(ctx); reason != "" {
			skip(results[start:], reason)
			e.logger.WarnContext(ctx, "Execution bound reached, skipping remaining steps",
				"reason", reason, "skipped", len(steps)-start)
			break
		}
		e.iterations++

		var batch []pending
		for i := start; i < end; i++ {
			t, ok := e.tools.Get(steps[i].Tool)
			if !ok {
				results[i].Status = state.StepFailed
				results[i].Err = fmt.Errorf("no tool named %q", steps[i].Tool)
				continue
			}
			if e.calls >= e.maxToolCalls {
				skip(results[i:i+1], SkipToolCallLimit)
				continue
			}
			batch = append(batch, e.launch(ctx, i, t, steps[i].Question))
		}

		var retries []pending
		for _, p := range batch {
			if e.collect(ctx, p, &results[p.index]) && e.calls < e.maxToolCalls && ctx.Err() == nil {
				e.logger.InfoContext(ctx, "Retrying step after transport error", "tool", p.tool.Name())
				retries = append(retries, e.launch(ctx, p.index, p.tool, steps[p.index].Question))
			}
		}
		for _, p := range retries {
			e.collect(ctx, p, &results[p.index])
		}

		start = end
	}
	return results
}

func (e *executor) launch(ctx context.Context, index int, t tool.Tool, question string) pending {
	e.calls++
	return pending{index: index, tool: t, future: t.CallAsync(ctx, question), start: time.Now()}
}

// collect waits for p and records its outcome. It reports whether the
// failure is a transport error worth retrying.
func (e *executor) collect(ctx context.Context, p pending, r *StepResult) bool {
	answer, err := p.future.Wait(ctx)
	elapsed := time.Since(p.start)
	r.Attempts++
	r.Duration += elapsed

	if err == nil && strings.TrimSpace(answer) != "" {
		r.Status, r.Answer, r.Err = state.StepAnswered, answer, nil
		e.record(ctx, p.tool.Name(), "success", elapsed)
		return false
	}

	if err == nil {
		err = ErrEmptyAnswer
	}
	outcome := errorKind(err)
	r.Status, r.Err = state.StepFailed, err
	e.record(ctx, p.tool.Name(), outcome, elapsed)
	e.logger.WarnContext(ctx, "Step failed",
		"tool", p.tool.Name(),
		"attempt", r.Attempts,
		"error_kind", outcome,
		"error", err,
	)
	return r.Attempts == 1 && errors.Is(err, transport.ErrTransport)
}

func (e *executor) record(ctx context.Context, name, outcome string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordToolCall(ctx, name, outcome, d)
	}
}

func (e *executor) exhausted(ctx context.Context) string {
	switch {
	case ctx.Err() != nil:
		return SkipTimeLimit
	case e.iterations >= e.maxIterations:
		return SkipIterationLimit
	case e.calls >= e.maxToolCalls:
		return SkipToolCallLimit
	}
	return ""
}

func skip(results []StepResult, reason string) {
	for i := range results {
		if results[i].Status == "" {
			results[i].Status = state.StepSkipped
			results[i].SkipReason = reason
		}
	}
}

// errorKind is transport.ErrorKind plus the orchestrator's own failures.
func errorKind(err error) string {
	if errors.Is(err, ErrEmptyAnswer) {
		return "empty_answer"
	}
	return transport.ErrorKind(err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
