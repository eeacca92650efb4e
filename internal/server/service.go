package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "marginly.v1.MarginlyService"

// MarginlyServiceServer is the RPC surface. Requests and responses are JSON
// objects carried as google.protobuf.Struct.
type MarginlyServiceServer interface {
	EncodeAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenLeveraged(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseLeveraged(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PreviewPosition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitIntent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyIntegrity(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(MarginlyServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// MarginlyServiceDesc is registered by RegisterMarginlyServiceServer.
var MarginlyServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarginlyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("EncodeAction", MarginlyServiceServer.EncodeAction),
		methodDesc("OpenLeveraged", MarginlyServiceServer.OpenLeveraged),
		methodDesc("CloseLeveraged", MarginlyServiceServer.CloseLeveraged),
		methodDesc("PreviewPosition", MarginlyServiceServer.PreviewPosition),
		methodDesc("SubmitIntent", MarginlyServiceServer.SubmitIntent),
		methodDesc("VerifyIntegrity", MarginlyServiceServer.VerifyIntegrity),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marginly/v1/marginly.proto",
}

func RegisterMarginlyServiceServer(s grpc.ServiceRegistrar, srv MarginlyServiceServer) {
	s.RegisterService(&MarginlyServiceDesc, srv)
}

// FullMethod returns the gRPC method path, e.g. /marginly.v1.MarginlyService/EncodeAction.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func methodDesc(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MarginlyServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MarginlyServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// MarginlyServiceClient calls the service over a client connection.
type MarginlyServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMarginlyServiceClient(cc grpc.ClientConnInterface) *MarginlyServiceClient {
	return &MarginlyServiceClient{cc: cc}
}

// Call invokes method with req and returns the response object.
func (c *MarginlyServiceClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
