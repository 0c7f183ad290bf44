package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "wordmath.v1.GuardService"
	// AssessMethod is the full method path of GuardService.Assess.
	AssessMethod = "/" + ServiceName + "/Assess"
)

// GuardServiceServer is the server API for GuardService. Requests and
// responses are google.protobuf.Struct documents with the same fields as the
// HTTP API bodies.
type GuardServiceServer interface {
	Assess(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// GuardServiceDesc describes GuardService for grpc.Server.RegisterService.
var GuardServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GuardServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Assess", Handler: assessHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wordmath/v1/guard.proto",
}

// RegisterGuardServiceServer registers srv on s.
func RegisterGuardServiceServer(s grpc.ServiceRegistrar, srv GuardServiceServer) {
	s.RegisterService(&GuardServiceDesc, srv)
}

func assessHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GuardServiceServer).Assess(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AssessMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GuardServiceServer).Assess(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GuardServiceClient calls GuardService over a client connection.
type GuardServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewGuardServiceClient wraps cc.
func NewGuardServiceClient(cc grpc.ClientConnInterface) *GuardServiceClient {
	return &GuardServiceClient{cc: cc}
}

// Assess invokes GuardService.Assess.
func (c *GuardServiceClient) Assess(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AssessMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
