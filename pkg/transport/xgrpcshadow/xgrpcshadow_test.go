package xgrpcshadow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
	"github.com/omeyang/xshadow/pkg/transport/xgrpcshadow"
)

const fullMethod = "/acme.OrderService/Create"

func incoming(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func newGate(t *testing.T, entries ...xwhitelist.Entry) *xwhitelist.Gate {
	t.Helper()
	g, err := xwhitelist.New(entries)
	require.NoError(t, err)
	return g
}

func TestTarget(t *testing.T) {
	assert.Equal(t, "acme.OrderService#Create", xgrpcshadow.Target(fullMethod))
	assert.Equal(t, "acme.OrderService", xgrpcshadow.Target("acme.OrderService"))
}

// =============================================================================
// 服务端拦截器
// =============================================================================

func TestUnaryServerInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod}

	t.Run("影子调用", func(t *testing.T) {
		interceptor := xgrpcshadow.UnaryServerInterceptor(nil)
		var ic *xinvoke.InvokeContext
		resp, err := interceptor(incoming(
			xinvoke.HeaderClusterTest, "1",
			xinvoke.HeaderTraceID, "trace-rpc",
			xinvoke.HeaderInvokeID, "0.1.2",
		), "req", info, func(ctx context.Context, _ any) (any, error) {
			ic = xinvoke.Current(ctx)
			return "resp", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "resp", resp)
		require.NotNil(t, ic)
		assert.True(t, ic.IsClusterTest())
		assert.Equal(t, "trace-rpc", ic.TraceID())
		assert.Equal(t, "0.1.2", ic.InvokeID())
		assert.Equal(t, xinvoke.InvokeRPC, ic.Type())
		assert.Equal(t, "acme.OrderService", ic.Scratch().ServiceName)
		assert.Equal(t, "Create", ic.Scratch().MethodName)
		assert.True(t, ic.Destroyed(), "context is popped after the handler")
	})

	t.Run("开关关闭", func(t *testing.T) {
		c := xclassify.New(xclassify.WithSwitch(xclassify.NewSwitch(false)))
		interceptor := xgrpcshadow.UnaryServerInterceptor(c)
		called := false
		_, err := interceptor(incoming(xinvoke.HeaderClusterTest, "1"), nil, info,
			func(context.Context, any) (any, error) { called = true; return nil, nil })
		assert.Equal(t, codes.Unavailable, status.Code(err))
		assert.False(t, called)
	})

	t.Run("白名单", func(t *testing.T) {
		interceptor := xgrpcshadow.UnaryServerInterceptor(nil,
			xgrpcshadow.WithGate(newGate(t, xwhitelist.RPC("acme.OrderService"))))
		handler := func(context.Context, any) (any, error) { return "ok", nil }

		_, err := interceptor(incoming(xinvoke.HeaderClusterTest, "1"), nil, info, handler)
		assert.NoError(t, err)

		_, err = interceptor(incoming(xinvoke.HeaderClusterTest, "1"), nil,
			&grpc.UnaryServerInfo{FullMethod: "/acme.UserService/Get"}, handler)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))

		_, err = interceptor(incoming(), nil, &grpc.UnaryServerInfo{FullMethod: "/acme.UserService/Get"}, handler)
		assert.NoError(t, err, "production calls skip the whitelist")
	})
}

type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context { return m.ctx }

func TestStreamServerInterceptor(t *testing.T) {
	interceptor := xgrpcshadow.StreamServerInterceptor(nil)
	ss := &mockServerStream{ctx: incoming(xinvoke.HeaderClusterTest, "true")}

	var shadow bool
	err := interceptor(nil, ss, &grpc.StreamServerInfo{FullMethod: fullMethod}, func(_ any, stream grpc.ServerStream) error {
		shadow = xinvoke.IsClusterTest(stream.Context())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, shadow)
}

// =============================================================================
// 客户端拦截器
// =============================================================================

func TestUnaryClientInterceptor(t *testing.T) {
	gate := newGate(t, xwhitelist.RPC("acme.OrderService#Create"))
	interceptor := xgrpcshadow.UnaryClientInterceptor(xgrpcshadow.WithGate(gate))

	var md metadata.MD
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		md, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}

	t.Run("影子调用注入子上下文", func(t *testing.T) {
		ctx, err := xinvoke.EnterWith(context.Background(),
			xinvoke.NewRoot(xinvoke.WithTraceID("t-1"), xinvoke.WithClusterTest(true)))
		require.NoError(t, err)
		defer func() { require.NoError(t, xinvoke.Exit(ctx)) }()

		require.NoError(t, interceptor(ctx, fullMethod, nil, nil, nil, invoker))
		assert.Equal(t, []string{"t-1"}, md.Get(xinvoke.HeaderTraceID))
		assert.Equal(t, []string{"0.1"}, md.Get(xinvoke.HeaderInvokeID))
		assert.Equal(t, []string{"1"}, md.Get(xinvoke.HeaderClusterTest))

		err = interceptor(ctx, "/acme.OrderService/Delete", nil, nil, nil, invoker)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("生产调用清除残留影子头", func(t *testing.T) {
		ctx, err := xinvoke.EnterWith(context.Background(), xinvoke.NewRoot())
		require.NoError(t, err)
		defer func() { require.NoError(t, xinvoke.Exit(ctx)) }()
		ctx = metadata.AppendToOutgoingContext(ctx, xinvoke.HeaderClusterTest, "1")

		require.NoError(t, interceptor(ctx, "/acme.OrderService/Delete", nil, nil, nil, invoker))
		assert.Empty(t, md.Get(xinvoke.HeaderClusterTest))
		assert.Len(t, md.Get(xinvoke.HeaderTraceID), 1)
	})

	t.Run("无调用上下文", func(t *testing.T) {
		md = nil
		require.NoError(t, interceptor(context.Background(), fullMethod, nil, nil, nil, invoker))
		assert.Empty(t, md.Get(xinvoke.HeaderTraceID))
	})
}

func TestStreamClientInterceptor(t *testing.T) {
	interceptor := xgrpcshadow.StreamClientInterceptor()
	ctx, err := xinvoke.EnterWith(context.Background(), xinvoke.NewRoot(xinvoke.WithClusterTest(true)))
	require.NoError(t, err)
	defer func() { require.NoError(t, xinvoke.Exit(ctx)) }()

	var got string
	_, err = interceptor(ctx, &grpc.StreamDesc{}, nil, fullMethod,
		func(ctx context.Context, _ *grpc.StreamDesc, _ *grpc.ClientConn, _ string, _ ...grpc.CallOption) (grpc.ClientStream, error) {
			md, _ := metadata.FromOutgoingContext(ctx)
			got = xgrpcshadow.MDCarrier(md).Get(xinvoke.HeaderClusterTest)
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}
