package transport

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrTransport matches any TransportError.
	ErrTransport = errors.New("transport error")
	// ErrCapabilityNotFound matches any CapabilityNotFoundError.
	ErrCapabilityNotFound = errors.New("capability not found")
	// ErrRemoteExecution matches any RemoteExecutionError.
	ErrRemoteExecution = errors.New("remote execution error")
)

// TransportError reports an unreachable endpoint, a timeout or a canceled call.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// CapabilityNotFoundError reports a name that the endpoint does not host.
type CapabilityNotFoundError struct {
	Endpoint   string
	Capability string
}

func (e *CapabilityNotFoundError) Error() string {
	return fmt.Sprintf("capability %q not found on %s", e.Capability, e.Endpoint)
}

func (e *CapabilityNotFoundError) Is(target error) bool { return target == ErrCapabilityNotFound }

// RemoteExecutionError reports a provider-side failure while handling a call.
type RemoteExecutionError struct {
	Endpoint   string
	Capability string
	Message    string
}

func (e *RemoteExecutionError) Error() string {
	return fmt.Sprintf("capability %q on %s failed: %s", e.Capability, e.Endpoint, e.Message)
}

func (e *RemoteExecutionError) Is(target error) bool { return target == ErrRemoteExecution }

// classify maps a gRPC call error onto the transport taxonomy.
func classify(endpoint, capability string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransportError{Endpoint: endpoint, Err: err}
	}

	st, ok := status.FromError(err)
	if !ok {
		return &TransportError{Endpoint: endpoint, Err: err}
	}

	switch st.Code() {
	case codes.NotFound:
		return &CapabilityNotFoundError{Endpoint: endpoint, Capability: capability}
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return &TransportError{Endpoint: endpoint, Err: err}
	default:
		return &RemoteExecutionError{Endpoint: endpoint, Capability: capability, Message: st.Message()}
	}
}

// ErrorKind returns a short label for err, suitable for metrics and records.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrCapabilityNotFound):
		return "capability_not_found"
	case errors.Is(err, ErrRemoteExecution):
		return "remote_execution"
	default:
		return "internal"
	}
}
