package llm

import (
	"context"
	"sync"
)

// MockClient is a mock LLM client for testing.
// It allows you to define custom generation logic via a GenerateFunc.
type MockClient struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, the prompt is echoed back.
	GenerateFunc func(ctx context.Context, req Request) (string, error)

	mu          sync.Mutex
	CallCount   int
	LastRequest Request
	Requests    []Request
}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// NewMockClientWithFunc creates a mock client with a custom generate function.
func NewMockClientWithFunc(fn func(ctx context.Context, req Request) (string, error)) *MockClient {
	return &MockClient{GenerateFunc: fn}
}

// FixedResponse returns a mock that always replies with text.
func FixedResponse(text string) *MockClient {
	return NewMockClientWithFunc(func(context.Context, Request) (string, error) {
		return text, nil
	})
}

// Generate implements the Client interface.
func (m *MockClient) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastRequest = req
	m.Requests = append(m.Requests, req)
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return req.Prompt, nil
}

// Calls returns the number of Generate calls so far.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}
