// Package classify picks one tool for a query from a list of candidates.
//
// Every Classifier is deterministic for the same inputs and resolves ties
// to the earliest candidate, so candidate order is discovery order.
package classify

import (
	"context"
	"errors"

	"github.com/owulveryck/nexushealth/internal/tool"
)

// ErrNoCandidates is returned when there is nothing to choose from.
var ErrNoCandidates = errors.New("no candidate tools")

// Classifier returns the name of the candidate that should handle query.
type Classifier interface {
	Classify(ctx context.Context, query string, candidates []tool.Descriptor) (string, error)
}

// Func adapts a plain function to Classifier.
type Func func(ctx context.Context, query string, candidates []tool.Descriptor) (string, error)

func (f Func) Classify(ctx context.Context, query string, candidates []tool.Descriptor) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	return f(ctx, query, candidates)
}
