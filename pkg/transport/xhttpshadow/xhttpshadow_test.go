package xhttpshadow_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
	"github.com/omeyang/xshadow/pkg/transport/xhttpshadow"
)

type seen struct {
	shadow   bool
	traceID  string
	invokeID string
	typ      xinvoke.InvokeType
}

func capture(out *seen) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ic := xinvoke.Current(r.Context())
		if ic != nil {
			*out = seen{shadow: ic.IsClusterTest(), traceID: ic.TraceID(), invokeID: ic.InvokeID(), typ: ic.Type()}
		}
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "ok")
	})
}

func newGate(t *testing.T, entries ...xwhitelist.Entry) *xwhitelist.Gate {
	t.Helper()
	g, err := xwhitelist.New(entries)
	require.NoError(t, err)
	return g
}

// =============================================================================
// 服务端中间件
// =============================================================================

func TestMiddleware(t *testing.T) {
	t.Run("影子头部", func(t *testing.T) {
		var got seen
		h := xhttpshadow.Middleware(nil)(capture(&got))

		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set(xinvoke.HeaderClusterTest, "1")
		req.Header.Set(xinvoke.HeaderTraceID, "trace-1")
		req.Header.Set(xinvoke.HeaderInvokeID, "0.2")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, seen{shadow: true, traceID: "trace-1", invokeID: "0.2", typ: xinvoke.InvokeWebServer}, got)
	})

	t.Run("压测 User-Agent", func(t *testing.T) {
		var got seen
		h := xhttpshadow.Middleware(nil)(capture(&got))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("User-Agent", "jmeter PerfomanceTest")
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.True(t, got.shadow)
	})

	t.Run("生产流量", func(t *testing.T) {
		var got seen
		h := xhttpshadow.Middleware(nil, xhttpshadow.WithGate(newGate(t)))(capture(&got))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.False(t, got.shadow)
		assert.Equal(t, xinvoke.RootInvokeID, got.invokeID)
	})

	t.Run("开关关闭拒绝影子请求", func(t *testing.T) {
		c := xclassify.New(xclassify.WithSwitch(xclassify.NewSwitch(false)))
		called := false
		h := xhttpshadow.Middleware(c)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(xinvoke.HeaderClusterTest, "true")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.False(t, called)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.True(t, called, "production traffic ignores the switch")
	})

	t.Run("白名单", func(t *testing.T) {
		var got seen
		h := xhttpshadow.Middleware(nil, xhttpshadow.WithGate(newGate(t, xwhitelist.URL("/api/*"))))(capture(&got))

		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set(xinvoke.HeaderClusterTest, "1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		req = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set(xinvoke.HeaderClusterTest, "1")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})
}

// =============================================================================
// 客户端 Transport
// =============================================================================

func TestTransport(t *testing.T) {
	var header http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
	}))
	defer upstream.Close()

	gate := newGate(t, xwhitelist.URL(upstream.URL+"/allowed"))
	client := &http.Client{Transport: xhttpshadow.NewTransport(nil, xhttpshadow.WithGate(gate))}

	do := func(ctx context.Context, path string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream.URL+path, nil)
		require.NoError(t, err)
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}

	t.Run("无调用上下文原样转发", func(t *testing.T) {
		require.NoError(t, do(context.Background(), "/denied"))
		assert.Empty(t, header.Get(xinvoke.HeaderTraceID))
	})

	t.Run("影子请求注入子上下文", func(t *testing.T) {
		ctx, err := xinvoke.EnterWith(context.Background(), xinvoke.NewRoot(xinvoke.WithTraceID("t-9"), xinvoke.WithClusterTest(true)))
		require.NoError(t, err)
		require.NoError(t, do(ctx, "/allowed"))
		assert.Equal(t, "t-9", header.Get(xinvoke.HeaderTraceID))
		assert.Equal(t, "0.1", header.Get(xinvoke.HeaderInvokeID))
		assert.Equal(t, "1", header.Get(xinvoke.HeaderClusterTest))
		require.NoError(t, xinvoke.Exit(ctx))
	})

	t.Run("影子请求不在白名单", func(t *testing.T) {
		ctx, err := xinvoke.EnterWith(context.Background(), xinvoke.NewRoot(xinvoke.WithClusterTest(true)))
		require.NoError(t, err)
		err = do(ctx, "/denied")
		var denied *xwhitelist.DeniedError
		require.True(t, errors.As(err, &denied))
		assert.Equal(t, xwhitelist.KindURL, denied.Kind)
		require.NoError(t, xinvoke.Exit(ctx))
	})

	t.Run("生产请求不写影子头", func(t *testing.T) {
		ctx, err := xinvoke.EnterWith(context.Background(), xinvoke.NewRoot(xinvoke.WithTraceID("t-prod")))
		require.NoError(t, err)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream.URL+"/denied", nil)
		require.NoError(t, err)
		req.Header.Set(xinvoke.HeaderClusterTest, "1")
		resp, err := client.Do(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		assert.Empty(t, header.Get(xinvoke.HeaderClusterTest), "stale shadow header is dropped")
		assert.Equal(t, "1", req.Header.Get(xinvoke.HeaderClusterTest), "caller request is untouched")
		require.NoError(t, xinvoke.Exit(ctx))
	})
}
