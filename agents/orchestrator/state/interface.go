// Package state persists orchestrator run records.
package state

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusCompleted     = "completed"
	StatusPartial       = "partial"
	StatusNoSpecialists = "no_specialists"
	StatusFailed        = "failed"
)

// Step statuses.
const (
	StepAnswered = "answered"
	StepFailed   = "failed"
	StepSkipped  = "skipped"
)

// Run is the record of one answered query.
type Run struct {
	ID         string
	Query      string
	Answer     string
	Status     string
	Tools      []string // tool names discovered for the session, in order
	Steps      []Step
	Truncated  bool // an execution bound skipped at least one step
	StartedAt  time.Time
	FinishedAt time.Time
}

// Step is the outcome of one planned sub-question.
type Step struct {
	Question  string        `json:"question"`
	Tool      string        `json:"tool"`
	Status    string        `json:"status"`
	Answer    string        `json:"answer,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Attempts  int           `json:"attempts"`
	Duration  time.Duration `json:"duration"`
}

// Store defines how run records are kept. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save inserts or replaces the run with the same ID.
	Save(ctx context.Context, run *Run) error

	// Get returns the run with the given ID or ErrRunNotFound.
	Get(ctx context.Context, id string) (*Run, error)

	// List returns up to limit runs, most recent first. A non-positive
	// limit returns all of them.
	List(ctx context.Context, limit int) ([]*Run, error)

	Close() error
}

// StateError reports an invalid store operation.
type StateError struct {
	Op  string // Operation that failed (e.g., "save", "get")
	Err string
}

func (e *StateError) Error() string {
	return "state " + e.Op + ": " + e.Err
}
