// Package llm defines the chat-model abstraction used by providers and the
// orchestrator, plus a mock for tests.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a model replies with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Request is a single-turn completion request.
type Request struct {
	// System sets the model's role and rules. Optional.
	System string
	// Prompt is the user turn.
	Prompt string
	// JSON asks the backend for a JSON-only reply when it supports it.
	JSON bool
}

// Client is the interface for interacting with an LLM.
// Implementations must be safe for concurrent use.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}
