package xwhitelist

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xreport"
	"github.com/omeyang/xshadow/pkg/shadow/xreport/xreportmock"
)

func newTestGate(t *testing.T, entries []Entry, opts ...Option) *Gate {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	g, err := New(entries, opts...)
	require.NoError(t, err)
	return g
}

func shadowCtx(t *testing.T, typ xinvoke.InvokeType) context.Context {
	t.Helper()
	ctx, err := xinvoke.EnterWith(context.Background(),
		xinvoke.NewRoot(xinvoke.WithClusterTest(true), xinvoke.WithType(typ)))
	require.NoError(t, err)
	return ctx
}

func TestNew_InvalidCacheSize(t *testing.T) {
	_, err := New(nil, WithCacheSize(0))
	assert.ErrorIs(t, err, ErrInvalidCacheSize)

	_, err = New([]Entry{URL("")})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestGate_CheckAndCache(t *testing.T) {
	g := newTestGate(t, []Entry{Topic("orders")})

	d := g.Check("orders", KindMQTopic)
	assert.Equal(t, Decision{Allowed: true, Reason: ReasonMatched}, d)
	d = g.Check("orders", KindMQTopic)
	assert.Equal(t, Decision{Allowed: true, Reason: ReasonCached}, d)

	d = g.Check("orders-topic", KindMQTopic)
	assert.Equal(t, Decision{Reason: ReasonNotListed}, d)
}

func TestGate_ReplaceInvalidatesCache(t *testing.T) {
	g := newTestGate(t, []Entry{Topic("orders")})
	require.True(t, g.Check("orders", KindMQTopic).Allowed)
	gen := g.Generation()

	require.NoError(t, g.Replace([]Entry{Topic("payments")}))
	assert.Equal(t, gen+1, g.Generation())
	assert.False(t, g.Check("orders", KindMQTopic).Allowed, "旧代缓存不再生效")
	assert.True(t, g.Check("payments", KindMQTopic).Allowed)

	// 无效条目不替换
	assert.ErrorIs(t, g.Replace([]Entry{Topic("#")}), ErrInvalidEntry)
	assert.Equal(t, gen+1, g.Generation())
	assert.Equal(t, []Entry{Topic("payments")}, g.Entries())
}

func TestGate_AddAtRuntime(t *testing.T) {
	g := newTestGate(t, []Entry{Topic("orders")})
	assert.False(t, g.Check("orders-topic", KindMQTopic).Allowed)

	require.NoError(t, g.Add(Topic("orders-topic")))
	assert.True(t, g.Check("orders-topic", KindMQTopic).Allowed)
	assert.True(t, g.Check("orders", KindMQTopic).Allowed)
}

func TestGate_Disabled(t *testing.T) {
	g := newTestGate(t, nil, WithDisabled())
	assert.False(t, g.Enabled())
	assert.Equal(t, ReasonDisabled, g.Check("anything", KindURL).Reason)

	g.SetEnabled(true)
	assert.False(t, g.Check("anything", KindURL).Allowed)
}

func TestGate_CheckContext_Production(t *testing.T) {
	g := newTestGate(t, nil)
	d := g.CheckContext(context.Background(), "orders-topic", KindMQTopic)
	assert.Equal(t, Decision{Allowed: true, Reason: ReasonProduction}, d)

	ctx, _, err := xinvoke.Enter(context.Background(), xinvoke.InvokeRPC)
	require.NoError(t, err)
	assert.True(t, g.CheckContext(ctx, "orders-topic", KindMQTopic).Allowed)
}

func TestGate_Enforce_Denied(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := xreportmock.NewMockReporter(ctrl)
	g := newTestGate(t, []Entry{Topic("orders")}, WithReporter(reporter), WithAppName("shop"))

	reporter.EXPECT().Report(gomock.Any()).Do(func(rec xreport.Record) {
		assert.Equal(t, xreport.CodeWhitelistDenied, rec.Code)
		assert.Contains(t, rec.Message, "[shop]")
		assert.Contains(t, rec.Message, "orders-topic")
	})

	err := g.Enforce(shadowCtx(t, xinvoke.InvokeMQ), "orders-topic", KindMQTopic)
	var de *DeniedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "orders-topic", de.Target)
	assert.ErrorIs(t, err, ErrDenied)
	assert.ErrorIs(t, err, xreport.ErrConfiguration)
}

func TestGate_Enforce_LogCarriesInvokeContext(t *testing.T) {
	var buf bytes.Buffer
	logger, _, _, err := xlog.New().SetOutput(&buf).SetFormat("json").Build()
	require.NoError(t, err)
	g, err := New([]Entry{Topic("orders")}, WithLogger(logger))
	require.NoError(t, err)

	ctx, err := xinvoke.EnterWith(context.Background(),
		xinvoke.NewRoot(xinvoke.WithTraceID("trace-deny"), xinvoke.WithClusterTest(true), xinvoke.WithType(xinvoke.InvokeMQ)))
	require.NoError(t, err)
	require.Error(t, g.Enforce(ctx, "orders-topic", KindMQTopic))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "xwhitelist: shadow call denied", m["msg"])
	assert.Equal(t, "trace-deny", m[xinvoke.KeyTraceID])
	assert.Equal(t, true, m[xinvoke.KeyClusterTest])
}

func TestGate_Enforce_BoundaryPassCheck(t *testing.T) {
	g := newTestGate(t, []Entry{URL("/api/orders")})
	ctx := shadowCtx(t, xinvoke.InvokeWebServer)

	require.NoError(t, g.Enforce(ctx, "/api/orders", KindURL))
	assert.True(t, xinvoke.Current(ctx).PassCheck())

	// 同一边界内的嵌套 RPC 调用不再检查
	ctx2, _, err := xinvoke.Enter(ctx, xinvoke.InvokeRPC)
	require.NoError(t, err)
	d := g.CheckContext(ctx2, "pkg.NotListed#Call", KindRPC)
	assert.Equal(t, ReasonPassCheck, d.Reason)

	// MQ 目标不受边界豁免影响
	assert.False(t, g.CheckContext(ctx2, "orders-topic", KindMQTopic).Allowed)
}

func TestGate_ConcurrentReplaceAndCheck(t *testing.T) {
	g := newTestGate(t, []Entry{Topic("a")}, WithCacheSize(8))
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			entries := []Entry{Topic("a")}
			if i%2 == 0 {
				entries = append(entries, Topic("b"))
			}
			assert.NoError(t, g.Replace(entries))
		}()
		go func() {
			defer wg.Done()
			assert.True(t, g.Check("a", KindMQTopic).Allowed)
			_ = g.Check("b", KindMQTopic)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(21), g.Generation())
}
