package xgrpcshadow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// =============================================================================
// 服务端拦截器
// =============================================================================

// UnaryServerInterceptor 返回一元服务端拦截器。c 为 nil 时使用默认判定器。
func UnaryServerInterceptor(c *xclassify.Classifier, opts ...Option) grpc.UnaryServerInterceptor {
	if c == nil {
		c = xclassify.New()
	}
	cfg := newConfig(opts)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, exit, err := enter(ctx, c, cfg, info.FullMethod)
		if err != nil {
			return nil, err
		}
		defer exit()
		return handler(ctx, req)
	}
}

// StreamServerInterceptor 返回流式服务端拦截器。
func StreamServerInterceptor(c *xclassify.Classifier, opts ...Option) grpc.StreamServerInterceptor {
	if c == nil {
		c = xclassify.New()
	}
	cfg := newConfig(opts)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, exit, err := enter(ss.Context(), c, cfg, info.FullMethod)
		if err != nil {
			return err
		}
		defer exit()
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// enter 判定入站调用并压栈，返回的 exit 负责弹栈。
func enter(ctx context.Context, c *xclassify.Classifier, cfg *config, fullMethod string) (context.Context, func(), error) {
	md, _ := metadata.FromIncomingContext(ctx)
	in := xinvoke.Extract(ctx, MDCarrier(md))
	m := xclassify.MarkersFrom(in)
	if ua := md.Get("user-agent"); len(ua) > 0 {
		m.UserAgent = ua[0]
	}

	next, ic, _, err := c.ClassifyContext(ctx, m, xinvoke.InvokeRPC)
	if err != nil {
		var disabled *xclassify.ShadowDisabledError
		if errors.As(err, &disabled) {
			return nil, nil, status.Error(codes.Unavailable, err.Error())
		}
		cfg.logger.ErrorContext(ctx, "xgrpcshadow: enter invoke context failed", slog.Any("error", err))
		return ctx, func() {}, nil
	}
	exit := func() {
		if err := xinvoke.Exit(next); err != nil {
			cfg.logger.ErrorContext(next, "xgrpcshadow: exit invoke context failed", slog.Any("error", err))
		}
	}

	target := Target(fullMethod)
	_ = ic.Update(func(s *xinvoke.Scratch) {
		s.MiddlewareName = "grpc"
		s.ServiceName, s.MethodName = splitTarget(target)
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			s.RemoteIP = p.Addr.String()
		}
	})

	if cfg.gate != nil && ic.IsClusterTest() {
		if err := cfg.gate.Enforce(next, target, xwhitelist.KindRPC); err != nil {
			exit()
			return nil, nil, status.Error(codes.PermissionDenied, err.Error())
		}
	}
	return next, exit, nil
}

func splitTarget(target string) (service, method string) {
	service, method, _ = strings.Cut(target, "#")
	return service, method
}
