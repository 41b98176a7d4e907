package a2a

import (
	"context"

	"google.golang.org/grpc"
)

const (
	CapabilityServiceName = "nexushealth.a2a.v1.CapabilityService"

	ListCapabilitiesFullMethod = "/" + CapabilityServiceName + "/ListCapabilities"
	InvokeFullMethod           = "/" + CapabilityServiceName + "/Invoke"
)

// CapabilityServiceServer is implemented by provider processes.
type CapabilityServiceServer interface {
	ListCapabilities(context.Context, *ListCapabilitiesRequest) (*ListCapabilitiesResponse, error)
	Invoke(context.Context, *InvokeRequest) (*InvokeResponse, error)
}

// CapabilityServiceClient is the consumer side of the capability service.
type CapabilityServiceClient interface {
	ListCapabilities(ctx context.Context, in *ListCapabilitiesRequest, opts ...grpc.CallOption) (*ListCapabilitiesResponse, error)
	Invoke(ctx context.Context, in *InvokeRequest, opts ...grpc.CallOption) (*InvokeResponse, error)
}

type capabilityServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCapabilityServiceClient returns a client stub that always negotiates the
// JSON codec.
func NewCapabilityServiceClient(cc grpc.ClientConnInterface) CapabilityServiceClient {
	return &capabilityServiceClient{cc: cc}
}

func (c *capabilityServiceClient) ListCapabilities(ctx context.Context, in *ListCapabilitiesRequest, opts ...grpc.CallOption) (*ListCapabilitiesResponse, error) {
	out := new(ListCapabilitiesResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, ListCapabilitiesFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *capabilityServiceClient) Invoke(ctx context.Context, in *InvokeRequest, opts ...grpc.CallOption) (*InvokeResponse, error) {
	out := new(InvokeResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, InvokeFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterCapabilityServiceServer attaches srv to a gRPC service registrar.
func RegisterCapabilityServiceServer(s grpc.ServiceRegistrar, srv CapabilityServiceServer) {
	s.RegisterService(&CapabilityServiceDesc, srv)
}

func listCapabilitiesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListCapabilitiesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CapabilityServiceServer).ListCapabilities(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListCapabilitiesFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CapabilityServiceServer).ListCapabilities(ctx, req.(*ListCapabilitiesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InvokeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CapabilityServiceServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InvokeFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CapabilityServiceServer).Invoke(ctx, req.(*InvokeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// CapabilityServiceDesc describes the capability service to grpc-go. It is
// written by hand because the payloads are plain structs over the JSON codec.
var CapabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: CapabilityServiceName,
	HandlerType: (*CapabilityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListCapabilities", Handler: listCapabilitiesHandler},
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nexushealth/a2a/v1/capability",
}
