// Package toolgatev1 defines the toolgate.v1.Gatekeeper gRPC service.
//
// Every method is unary and carries a google.protobuf.Struct in both
// directions. The Go types in messages.go describe the JSON shape of
// those structs and convert to and from them.
package toolgatev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "toolgate.v1.Gatekeeper"

// Full method names.
const (
	MethodAuthorize    = "/" + ServiceName + "/Authorize"
	MethodResolve      = "/" + ServiceName + "/Resolve"
	MethodListPending  = "/" + ServiceName + "/ListPending"
	MethodReadAudit    = "/" + ServiceName + "/ReadAudit"
	MethodVerifyAudit  = "/" + ServiceName + "/VerifyAudit"
	MethodSetThreshold = "/" + ServiceName + "/SetThreshold"
)

// GatekeeperServer is the server API for the Gatekeeper service.
type GatekeeperServer interface {
	Authorize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Resolve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPending(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReadAudit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyAudit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetThreshold(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type serverMethod func(GatekeeperServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call serverMethod) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GatekeeperServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(GatekeeperServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for the Gatekeeper service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GatekeeperServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Authorize", GatekeeperServer.Authorize),
		unary("Resolve", GatekeeperServer.Resolve),
		unary("ListPending", GatekeeperServer.ListPending),
		unary("ReadAudit", GatekeeperServer.ReadAudit),
		unary("VerifyAudit", GatekeeperServer.VerifyAudit),
		unary("SetThreshold", GatekeeperServer.SetThreshold),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "toolgate/v1/gatekeeper.proto",
}

// RegisterGatekeeperServer registers srv on s.
func RegisterGatekeeperServer(s grpc.ServiceRegistrar, srv GatekeeperServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// GatekeeperClient is the typed client API for the Gatekeeper service.
type GatekeeperClient interface {
	Authorize(ctx context.Context, in *AuthorizeRequest, opts ...grpc.CallOption) (*Decision, error)
	Resolve(ctx context.Context, in *ResolveRequest, opts ...grpc.CallOption) (*Decision, error)
	ListPending(ctx context.Context, in *ListPendingRequest, opts ...grpc.CallOption) (*ListPendingResponse, error)
	ReadAudit(ctx context.Context, in *ReadAuditRequest, opts ...grpc.CallOption) (*ReadAuditResponse, error)
	VerifyAudit(ctx context.Context, opts ...grpc.CallOption) (*IntegrityReport, error)
	SetThreshold(ctx context.Context, in *SetThresholdRequest, opts ...grpc.CallOption) (*SetThresholdResponse, error)
}

type gatekeeperClient struct {
	cc grpc.ClientConnInterface
}

// NewGatekeeperClient returns a client over cc.
func NewGatekeeperClient(cc grpc.ClientConnInterface) GatekeeperClient {
	return &gatekeeperClient{cc: cc}
}

func invoke[Out any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Out, error) {
	req, err := ToStruct(in)
	if err != nil {
		return nil, err
	}
	reply := new(structpb.Struct)
	if err := cc.Invoke(ctx, method, req, reply, opts...); err != nil {
		return nil, err
	}
	out := new(Out)
	if err := FromStruct(reply, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gatekeeperClient) Authorize(ctx context.Context, in *AuthorizeRequest, opts ...grpc.CallOption) (*Decision, error) {
	return invoke[Decision](ctx, c.cc, MethodAuthorize, in, opts)
}

func (c *gatekeeperClient) Resolve(ctx context.Context, in *ResolveRequest, opts ...grpc.CallOption) (*Decision, error) {
	return invoke[Decision](ctx, c.cc, MethodResolve, in, opts)
}

func (c *gatekeeperClient) ListPending(ctx context.Context, in *ListPendingRequest, opts ...grpc.CallOption) (*ListPendingResponse, error) {
	return invoke[ListPendingResponse](ctx, c.cc, MethodListPending, in, opts)
}

func (c *gatekeeperClient) ReadAudit(ctx context.Context, in *ReadAuditRequest, opts ...grpc.CallOption) (*ReadAuditResponse, error) {
	return invoke[ReadAuditResponse](ctx, c.cc, MethodReadAudit, in, opts)
}

func (c *gatekeeperClient) VerifyAudit(ctx context.Context, opts ...grpc.CallOption) (*IntegrityReport, error) {
	return invoke[IntegrityReport](ctx, c.cc, MethodVerifyAudit, struct{}{}, opts)
}

func (c *gatekeeperClient) SetThreshold(ctx context.Context, in *SetThresholdRequest, opts ...grpc.CallOption) (*SetThresholdResponse, error) {
	return invoke[SetThresholdResponse](ctx, c.cc, MethodSetThreshold, in, opts)
}
