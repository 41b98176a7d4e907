package state

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps runs in process memory. History is lost on exit.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Run)}
}

func (s *MemoryStore) Save(_ context.Context, run *Run) error {
	if run == nil {
		return &StateError{Op: "save", Err: "run cannot be nil"}
	}
	if run.ID == "" {
		return &StateError{Op: "save", Err: "run ID cannot be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Store a copy to prevent external modifications
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return copyRun(run), nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*Run, error) {
	s.mu.RLock()
	out := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, copyRun(run))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func copyRun(run *Run) *Run {
	cp := *run
	cp.Tools = append([]string(nil), run.Tools...)
	cp.Steps = append([]Step(nil), run.Steps...)
	return &cp
}
