package remote

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// serviceDesc is written by hand: every method takes and returns a protobuf
// Struct, so there is no generated code to lean on.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateValue", Handler: unaryHandler("CreateValue", (*Service).createValue)},
		{MethodName: "CreateCall", Handler: unaryHandler("CreateCall", (*Service).createCall)},
		{MethodName: "CreateTuple", Handler: unaryHandler("CreateTuple", (*Service).createTuple)},
		{MethodName: "CreateSelection", Handler: unaryHandler("CreateSelection", (*Service).createSelection)},
		{MethodName: "Compute", Handler: unaryHandler("Compute", (*Service).compute)},
		{MethodName: "Dispose", Handler: unaryHandler("Dispose", (*Service).dispose)},
	},
	Metadata: "fedtree/v1/executor.proto",
}

type methodFn func(*Service, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, fn methodFn) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(*Service), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return fn(srv.(*Service), ctx, req.(*structpb.Struct))
		})
	}
}
