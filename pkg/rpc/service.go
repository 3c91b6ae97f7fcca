package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "ledgerseal.v1.AttestService"

	AttestService_Upload_FullMethodName  = "/ledgerseal.v1.AttestService/Upload"
	AttestService_Verify_FullMethodName  = "/ledgerseal.v1.AttestService/Verify"
	AttestService_Resolve_FullMethodName = "/ledgerseal.v1.AttestService/Resolve"
)

// AttestServer 是服务端需要实现的接口
type AttestServer interface {
	Upload(context.Context, *UploadRequest) (*UploadResponse, error)
	Verify(context.Context, *VerifyRequest) (*VerifyResponse, error)
	Resolve(context.Context, *ResolveRequest) (*ResolveResponse, error)
}

// AttestClient 是客户端存根
type AttestClient interface {
	Upload(ctx context.Context, in *UploadRequest, opts ...grpc.CallOption) (*UploadResponse, error)
	Verify(ctx context.Context, in *VerifyRequest, opts ...grpc.CallOption) (*VerifyResponse, error)
	Resolve(ctx context.Context, in *ResolveRequest, opts ...grpc.CallOption) (*ResolveResponse, error)
}

type attestClient struct {
	cc grpc.ClientConnInterface
}

func NewAttestClient(cc grpc.ClientConnInterface) AttestClient {
	return &attestClient{cc: cc}
}

// callOpts 总是带上 CBOR content-subtype
func callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *attestClient) Upload(ctx context.Context, in *UploadRequest, opts ...grpc.CallOption) (*UploadResponse, error) {
	out := new(UploadResponse)
	if err := c.cc.Invoke(ctx, AttestService_Upload_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *attestClient) Verify(ctx context.Context, in *VerifyRequest, opts ...grpc.CallOption) (*VerifyResponse, error) {
	out := new(VerifyResponse)
	if err := c.cc.Invoke(ctx, AttestService_Verify_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *attestClient) Resolve(ctx context.Context, in *ResolveRequest, opts ...grpc.CallOption) (*ResolveResponse, error) {
	out := new(ResolveResponse)
	if err := c.cc.Invoke(ctx, AttestService_Resolve_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterAttestServer 把实现挂到 gRPC Server 上
func RegisterAttestServer(s grpc.ServiceRegistrar, srv AttestServer) {
	s.RegisterService(&AttestService_ServiceDesc, srv)
}

func _AttestService_Upload_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UploadRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AttestServer).Upload(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AttestService_Upload_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AttestServer).Upload(ctx, req.(*UploadRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _AttestService_Verify_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(VerifyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AttestServer).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AttestService_Verify_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AttestServer).Verify(ctx, req.(*VerifyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _AttestService_Resolve_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResolveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AttestServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AttestService_Resolve_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AttestServer).Resolve(ctx, req.(*ResolveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AttestService_ServiceDesc 手写的服务描述，等价于 protoc-gen-go-grpc 的产物
var AttestService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AttestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Upload", Handler: _AttestService_Upload_Handler},
		{MethodName: "Verify", Handler: _AttestService_Verify_Handler},
		{MethodName: "Resolve", Handler: _AttestService_Resolve_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledgerseal/v1/attest",
}
