package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/owulveryck/nexushealth/internal/a2a"
)

func echo(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
	return a2a.NewTextMessage(a2a.RoleAgent, "echo: "+msg.Text()), nil
}

// startServer serves srv over an in-memory listener and returns a client for it.
func startServer(t *testing.T, srv *Server, opts ...Option) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	opts = append([]Option{WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))}, opts...)
	client, err := Dial("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer()
	require.NoError(t, err)
	return srv
}

func collect(t *testing.T, c *Client) []string {
	t.Helper()
	var names []string
	for capability, err := range c.ListCapabilities(context.Background()) {
		require.NoError(t, err)
		names = append(names, capability.Name)
	}
	return names
}

func TestListCapabilities_RequeriesOnEachIteration(t *testing.T) {
	srv := newServer(t)
	require.NoError(t, srv.Register(a2a.Capability{Name: "health_agent", Description: "General health questions"}, echo))
	client := startServer(t, srv)

	assert.Equal(t, []string{"health_agent"}, collect(t, client))

	require.NoError(t, srv.Register(a2a.Capability{Name: "doctor_agent", Description: "Find doctors by state"}, echo))
	assert.Equal(t, []string{"health_agent", "doctor_agent"}, collect(t, client))
}

func TestListCapabilities_DefaultsModes(t *testing.T) {
	srv := newServer(t)
	require.NoError(t, srv.Register(a2a.Capability{Name: "policy_agent", Description: "Insurance policy"}, echo))
	client := startServer(t, srv)

	caps, err := client.Capabilities(context.Background())
	require.NoError(t, err)
	require.Len(t, caps, 1)
	assert.Equal(t, "Insurance policy", caps[0].Description)
	assert.Equal(t, []string{a2a.KindText}, caps[0].InputModes)
	assert.Equal(t, []string{a2a.KindText}, caps[0].OutputModes)
}

func TestListCapabilities_StopsEarly(t *testing.T) {
	srv := newServer(t)
	require.NoError(t, srv.Register(a2a.Capability{Name: "a"}, echo))
	require.NoError(t, srv.Register(a2a.Capability{Name: "b"}, echo))
	client := startServer(t, srv)

	var seen int
	for range client.ListCapabilities(context.Background()) {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestRegister_Duplicate(t *testing.T) {
	srv := newServer(t)
	require.NoError(t, srv.Register(a2a.Capability{Name: "doctor_agent"}, echo))
	err := srv.Register(a2a.Capability{Name: "doctor_agent"}, echo)
	assert.ErrorIs(t, err, ErrDuplicateCapability)

	assert.Error(t, srv.Register(a2a.Capability{}, echo))
	assert.Error(t, srv.Register(a2a.Capability{Name: "x"}, nil))
}

func TestInvoke_RoundTrip(t *testing.T) {
	srv := newServer(t)
	require.NoError(t, srv.Register(a2a.Capability{Name: "health_agent"}, echo))
	client := startServer(t, srv)

	msg := a2a.NewTextMessage(a2a.RoleUser, "What are the symptoms of flu?").WithContext("run-1")
	reply, err := client.Invoke(context.Background(), "health_agent", msg)
	require.NoError(t, err)
	assert.Equal(t, "echo: What are the symptoms of flu?", reply.Text())
	assert.Equal(t, a2a.RoleAgent, reply.Role)
	assert.Equal(t, "run-1", reply.ContextID)
}

func TestInvoke_CapabilityNotFound(t *testing.T) {
	client := startServer(t, newServer(t))

	_, err := client.Invoke(context.Background(), "missing", a2a.NewTextMessage(a2a.RoleUser, "hi"))
	require.ErrorIs(t, err, ErrCapabilityNotFound)

	var notFound *CapabilityNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Capability)
	assert.Equal(t, "passthrough:///bufnet", notFound.Endpoint)
}

func TestInvoke_HandlerFailureKeepsServing(t *testing.T) {
	srv := newServer(t)
	require.NoError(t, srv.Register(a2a.Capability{Name: "broken"}, func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		return nil, errors.New("index unavailable")
	}))
	require.NoError(t, srv.Register(a2a.Capability{Name: "panics"}, func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		panic("boom")
	}))
	require.NoError(t, srv.Register(a2a.Capability{Name: "echo"}, echo))
	client := startServer(t, srv)

	_, err := client.Invoke(context.Background(), "broken", a2a.NewTextMessage(a2a.RoleUser, "q"))
	require.ErrorIs(t, err, ErrRemoteExecution)
	var remote *RemoteExecutionError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "index unavailable")

	_, err = client.Invoke(context.Background(), "panics", a2a.NewTextMessage(a2a.RoleUser, "q"))
	require.ErrorIs(t, err, ErrRemoteExecution)
	assert.Contains(t, err.Error(), "panicked")

	reply, err := client.Invoke(context.Background(), "echo", a2a.NewTextMessage(a2a.RoleUser, "still up"))
	require.NoError(t, err)
	assert.Equal(t, "echo: still up", reply.Text())
}

func TestInvoke_EmptyMessageRejected(t *testing.T) {
	srv := newServer(t)
	require.NoError(t, srv.Register(a2a.Capability{Name: "echo"}, echo))
	client := startServer(t, srv)

	_, err := client.Invoke(context.Background(), "echo", &a2a.Message{})
	assert.ErrorIs(t, err, ErrRemoteExecution)
}

func TestInvoke_Unreachable(t *testing.T) {
	client, err := Dial("127.0.0.1:1", WithCallTimeout(2*time.Second))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Invoke(context.Background(), "health_agent", a2a.NewTextMessage(a2a.RoleUser, "q"))
	require.ErrorIs(t, err, ErrTransport)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "127.0.0.1:1", transportErr.Endpoint)

	for _, err := range client.ListCapabilities(context.Background()) {
		assert.ErrorIs(t, err, ErrTransport)
	}
}

func blocking(started chan<- struct{}) Handler {
	return func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func TestInvoke_Timeout(t *testing.T) {
	srv := newServer(t)
	started := make(chan struct{})
	require.NoError(t, srv.Register(a2a.Capability{Name: "slow"}, blocking(started)))
	client := startServer(t, srv, WithCallTimeout(50*time.Millisecond))

	_, err := client.Invoke(context.Background(), "slow", a2a.NewTextMessage(a2a.RoleUser, "q"))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClose_CancelsInFlight(t *testing.T) {
	srv := newServer(t)
	started := make(chan struct{})
	require.NoError(t, srv.Register(a2a.Capability{Name: "slow"}, blocking(started)))
	client := startServer(t, srv)

	results := client.InvokeAsync(context.Background(), "slow", a2a.NewTextMessage(a2a.RoleUser, "q"))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}

	require.NoError(t, client.Close())
	select {
	case res := <-results:
		assert.ErrorIs(t, res.Err, ErrTransport)
		assert.Nil(t, res.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight call was not canceled")
	}

	_, err := client.Invoke(context.Background(), "slow", a2a.NewTextMessage(a2a.RoleUser, "q"))
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.NoError(t, client.Close())
}

func TestInvokeAsync_DeliversOnce(t *testing.T) {
	srv := newServer(t)
	require.NoError(t, srv.Register(a2a.Capability{Name: "echo"}, echo))
	client := startServer(t, srv)

	results := client.InvokeAsync(context.Background(), "echo", a2a.NewTextMessage(a2a.RoleUser, "async"))
	res, ok := <-results
	require.True(t, ok)
	require.NoError(t, res.Err)
	assert.Equal(t, "echo: async", res.Message.Text())

	_, ok = <-results
	assert.False(t, ok)
}

func TestHealth(t *testing.T) {
	client := startServer(t, newServer(t))
	assert.NoError(t, client.Health(context.Background()))
}

func TestWithClient_ReleasesOnFailure(t *testing.T) {
	var captured *Client
	bodyErr := errors.New("body failed")

	err := WithClient(context.Background(), "localhost:8000", func(ctx context.Context, c *Client) error {
		captured = c
		return bodyErr
	})
	require.ErrorIs(t, err, bodyErr)
	require.NotNil(t, captured)

	_, err = captured.Invoke(context.Background(), "doctor_agent", a2a.NewTextMessage(a2a.RoleUser, "CA"))
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "localhost:8000", want: "localhost:8000"},
		{in: " localhost:8001/ ", want: "localhost:8001"},
		{in: "http://localhost:8000", want: "localhost:8000"},
		{in: "http://localhost:8001/", want: "localhost:8001"},
		{in: "grpc://insurer:8001", want: "insurer:8001"},
		{in: "passthrough:///bufnet", want: "passthrough:///bufnet"},
		{in: "", wantErr: true},
		{in: "ftp://host:21", wantErr: true},
		{in: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeEndpoint(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{err: status.Error(codes.NotFound, "nope"), kind: "capability_not_found"},
		{err: status.Error(codes.Unavailable, "down"), kind: "transport"},
		{err: status.Error(codes.DeadlineExceeded, "slow"), kind: "transport"},
		{err: status.Error(codes.Canceled, "gone"), kind: "transport"},
		{err: context.DeadlineExceeded, kind: "transport"},
		{err: fmt.Errorf("wrapped: %w", context.Canceled), kind: "transport"},
		{err: errors.New("dial failure"), kind: "transport"},
		{err: status.Error(codes.Internal, "boom"), kind: "remote_execution"},
		{err: status.Error(codes.InvalidArgument, "bad"), kind: "remote_execution"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.kind, ErrorKind(classify("e", "c", tt.err)))
		})
	}
	assert.Nil(t, classify("e", "c", nil))
	assert.Equal(t, "internal", ErrorKind(errors.New("other")))
	assert.Equal(t, "", ErrorKind(nil))
}
