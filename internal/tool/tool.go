// Package tool adapts remote capabilities and local functions to one calling
// convention used by reasoning loops.
//
// Every tool has a single asynchronous core. CallAsync runs it on its own
// goroutine and returns a Future; Call is CallAsync followed by Wait. A Call
// made from inside a running core is rejected with ErrNestedBlockingCall.
package tool

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNestedBlockingCall is returned when Call is used inside a tool core.
	ErrNestedBlockingCall = errors.New("blocking tool call from inside an asynchronous tool execution")
	// ErrToolNameCollision is returned when two tools end up with the same name.
	ErrToolNameCollision = errors.New("tool name collision")
)

// Tool is a named unit a reasoning loop can call with a natural-language query.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, query string) (string, error)
	CallAsync(ctx context.Context, query string) *Future
}

// CoreFunc is the asynchronous core of a tool.
type CoreFunc func(ctx context.Context, query string) (string, error)

type asyncKey struct{}

// Executing reports the name of the tool whose core is running on ctx.
func Executing(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(asyncKey{}).(string)
	return name, ok
}

type contextIDKey struct{}

// WithContextID attaches the correlation ID that remote calls carry.
func WithContextID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextIDKey{}, id)
}

// ContextID returns the correlation ID set by WithContextID.
func ContextID(ctx context.Context) string {
	id, _ := ctx.Value(contextIDKey{}).(string)
	return id
}

// Future is the pending result of CallAsync.
type Future struct {
	done   chan struct{}
	result string
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(result string, err error) {
	f.result, f.err = result, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx ends.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// core implements the two calling conventions on top of a CoreFunc.
type core struct {
	name        string
	description string
	run         CoreFunc
}

func (c *core) Name() string        { return c.name }
func (c *core) Description() string { return c.description }

func (c *core) CallAsync(ctx context.Context, query string) *Future {
	f := newFuture()
	go func() {
		var (
			result string
			err    error
		)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tool %s panicked: %v", c.name, r)
			}
			f.resolve(result, err)
		}()
		result, err = c.run(context.WithValue(ctx, asyncKey{}, c.name), query)
	}()
	return f
}

func (c *core) Call(ctx context.Context, query string) (string, error) {
	if outer, ok := Executing(ctx); ok {
		return "", fmt.Errorf("%w: %s called from %s", ErrNestedBlockingCall, c.name, outer)
	}
	return c.CallAsync(ctx, query).Wait(ctx)
}
