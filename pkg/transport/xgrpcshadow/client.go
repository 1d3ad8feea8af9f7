package xgrpcshadow

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// =============================================================================
// 客户端拦截器
// =============================================================================

// UnaryClientInterceptor 返回一元客户端拦截器。
func UnaryClientInterceptor(opts ...Option) grpc.UnaryClientInterceptor {
	cfg := newConfig(opts)
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		ctx, err := outgoing(ctx, cfg, method)
		if err != nil {
			return err
		}
		return invoker(ctx, method, req, reply, cc, callOpts...)
	}
}

// StreamClientInterceptor 返回流式客户端拦截器。
func StreamClientInterceptor(opts ...Option) grpc.StreamClientInterceptor {
	cfg := newConfig(opts)
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, callOpts ...grpc.CallOption) (grpc.ClientStream, error) {
		ctx, err := outgoing(ctx, cfg, method)
		if err != nil {
			return nil, err
		}
		return streamer(ctx, desc, cc, method, callOpts...)
	}
}

// InjectToOutgoingContext 把 ctx 当前调用上下文的子上下文写入 outgoing metadata。
// ctx 中没有调用上下文时原样返回。
func InjectToOutgoingContext(ctx context.Context) context.Context {
	cur := xinvoke.Current(ctx)
	if cur == nil {
		return ctx
	}
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	md.Delete(xinvoke.HeaderClusterTest)
	md.Delete(xinvoke.HeaderDebug)
	xinvoke.Inject(cur.NewChild(xinvoke.InvokeRPC), MDCarrier(md))
	return metadata.NewOutgoingContext(ctx, md)
}

func outgoing(ctx context.Context, cfg *config, method string) (context.Context, error) {
	if cfg.gate != nil && xinvoke.IsClusterTest(ctx) {
		if err := cfg.gate.Enforce(ctx, Target(method), xwhitelist.KindRPC); err != nil {
			return nil, status.Error(codes.PermissionDenied, err.Error())
		}
	}
	return InjectToOutgoingContext(ctx), nil
}
