package transport

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/owulveryck/nexushealth/internal/a2a"
	"github.com/owulveryck/nexushealth/internal/observability"
)

// DefaultCallTimeout bounds a single remote call.
const DefaultCallTimeout = 60 * time.Second

// ErrClientClosed is wrapped in the TransportError returned by calls made
// after Close.
var ErrClientClosed = errors.New("client is closed")

// Result is the outcome of an InvokeAsync call.
type Result struct {
	Message *a2a.Message
	Err     error
}

// Client talks to one capability endpoint. It is safe for concurrent use.
type Client struct {
	endpoint    string
	conn        *grpc.ClientConn
	stub        a2a.CapabilityServiceClient
	health      healthpb.HealthClient
	callTimeout time.Duration
	dialOpts    []grpc.DialOption
	logger      *slog.Logger
	traces      *observability.TraceManager

	// base is canceled by Close; every call context is tied to it.
	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

type Option func(*Client)

// WithCallTimeout sets the per-call deadline. Non-positive values keep the default.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithDialOptions appends gRPC dial options, e.g. a bufconn dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) { c.dialOpts = append(c.dialOpts, opts...) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithTraceManager(tm *observability.TraceManager) Option {
	return func(c *Client) { c.traces = tm }
}

// Dial prepares a client for endpoint. The connection is established lazily,
// so an unreachable endpoint surfaces as a TransportError on the first call.
func Dial(endpoint string, opts ...Option) (*Client, error) {
	target, err := NormalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	c := &Client{
		endpoint:    target,
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.traces == nil {
		c.traces = observability.NewTraceManager("nexushealth/transport")
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, c.dialOpts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, &TransportError{Endpoint: target, Err: err}
	}

	c.conn = conn
	c.stub = a2a.NewCapabilityServiceClient(conn)
	c.health = healthpb.NewHealthClient(conn)
	c.base, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// WithClient dials endpoint, runs fn and always closes the client, even when
// fn fails.
func WithClient(ctx context.Context, endpoint string, fn func(context.Context, *Client) error, opts ...Option) (err error) {
	c, err := Dial(endpoint, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(ctx, c)
}

// Endpoint returns the normalized dial target.
func (c *Client) Endpoint() string { return c.endpoint }

// Conn exposes the underlying connection, e.g. for health checkers.
func (c *Client) Conn() grpc.ClientConnInterface { return c.conn }

// callContext derives a context bounded by the call timeout and canceled
// when the client closes.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, nil, &TransportError{Endpoint: c.endpoint, Err: ErrClientClosed}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	stop := context.AfterFunc(c.base, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}, nil
}

// ListCapabilities returns a lazy listing of the endpoint's capabilities.
// Every range over the sequence issues a fresh query; nothing is cached.
// A failed query yields a single error and ends the sequence.
func (c *Client) ListCapabilities(ctx context.Context) iter.Seq2[a2a.Capability, error] {
	return func(yield func(a2a.Capability, error) bool) {
		caps, err := c.Capabilities(ctx)
		if err != nil {
			yield(a2a.Capability{}, err)
			return
		}
		for _, capability := range caps {
			if !yield(capability, nil) {
				return
			}
		}
	}
}

// Capabilities performs one listing query.
func (c *Client) Capabilities(ctx context.Context) ([]a2a.Capability, error) {
	callCtx, done, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	resp, err := c.stub.ListCapabilities(callCtx, &a2a.ListCapabilitiesRequest{})
	if err != nil {
		return nil, classify(c.endpoint, "", err)
	}
	return resp.Capabilities, nil
}

// Invoke calls capability with msg and blocks until the reply arrives.
func (c *Client) Invoke(ctx context.Context, capability string, msg *a2a.Message) (*a2a.Message, error) {
	ctx, span := c.traces.StartInvokeSpan(ctx, c.endpoint, capability)
	defer span.End()
	if msg != nil {
		c.traces.AddMessageAttributes(span, msg.MessageID, msg.ContextID, string(msg.Role), len(msg.Parts))
	}

	callCtx, done, err := c.callContext(ctx)
	if err != nil {
		c.traces.RecordError(span, err)
		return nil, err
	}
	defer done()

	start := time.Now()
	resp, err := c.stub.Invoke(callCtx, &a2a.InvokeRequest{Capability: capability, Message: msg})
	if err != nil {
		err = classify(c.endpoint, capability, err)
		c.traces.RecordError(span, err)
		c.logger.WarnContext(ctx, "Capability invocation failed",
			"endpoint", c.endpoint,
			"capability", capability,
			"error_kind", ErrorKind(err),
			"error", err,
		)
		return nil, err
	}
	if resp.Message == nil {
		err := &RemoteExecutionError{Endpoint: c.endpoint, Capability: capability, Message: "empty reply"}
		c.traces.RecordError(span, err)
		return nil, err
	}

	c.traces.SetSpanSuccess(span)
	c.logger.DebugContext(ctx, "Capability invoked",
		"endpoint", c.endpoint,
		"capability", capability,
		"duration", time.Since(start),
	)
	return resp.Message, nil
}

// InvokeAsync starts Invoke on its own goroutine. The returned channel
// receives exactly one Result and is then closed.
func (c *Client) InvokeAsync(ctx context.Context, capability string, msg *a2a.Message) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		reply, err := c.Invoke(ctx, capability, msg)
		out <- Result{Message: reply, Err: err}
	}()
	return out
}

// Health probes the endpoint with the grpc.health.v1 protocol.
func (c *Client) Health(ctx context.Context) error {
	callCtx, done, err := c.callContext(ctx)
	if err != nil {
		return err
	}
	defer done()

	resp, err := c.health.Check(callCtx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return classify(c.endpoint, "", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return &TransportError{Endpoint: c.endpoint, Err: fmt.Errorf("endpoint reports %s", resp.GetStatus())}
	}
	return nil
}

// Close cancels in-flight calls and releases the connection. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("closing connection to %s: %w", c.endpoint, err)
	}
	return nil
}
