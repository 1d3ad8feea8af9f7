package xclassify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xreport"
	"github.com/omeyang/xshadow/pkg/shadow/xreport/xreportmock"
)

func newTestClassifier(opts ...Option) *Classifier {
	return New(append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)...)
}

func TestClassify_Precedence(t *testing.T) {
	shadowParent := xinvoke.NewRoot(xinvoke.WithClusterTest(true))
	prodParent := xinvoke.NewRoot()

	tests := []struct {
		name       string
		markers    Markers
		wantShadow bool
		wantSource Source
	}{
		{"no markers", Markers{}, false, SourceNone},
		{"header 1", Markers{ClusterTest: "1"}, true, SourceHeader},
		{"header true", Markers{ClusterTest: "true"}, true, SourceHeader},
		{"header TRUE", Markers{ClusterTest: " TRUE "}, true, SourceHeader},
		{"user agent suffix", Markers{UserAgent: "jmeter/5.6 PerfomanceTest"}, true, SourceHeader},
		{"header value user agent marker", Markers{ClusterTest: "PerfomanceTest"}, true, SourceHeader},
		{"prefix name", Markers{Names: []string{"PT_orders"}}, true, SourceName},
		{"suffix name", Markers{Names: []string{"orders_PT"}}, true, SourceName},
		{"second name", Markers{Names: []string{"orders", "PT_group"}}, true, SourceName},
		{"plain name", Markers{Names: []string{"orders"}}, false, SourceNone},
		{"explicit 0 suppresses prefix", Markers{ClusterTest: "0", Names: []string{"PT_orders"}}, false, SourceHeader},
		{"explicit false suppresses prefix", Markers{ClusterTest: "false", Names: []string{"PT_orders"}}, false, SourceHeader},
		{"unknown header falls through", Markers{ClusterTest: "maybe", Names: []string{"PT_orders"}}, true, SourceName},
		{"shadow parent wins over explicit 0", Markers{ClusterTest: "0", Parent: shadowParent}, true, SourceParent},
		{"prod parent, header shadow", Markers{ClusterTest: "1", Parent: prodParent}, true, SourceHeader},
		{"prod parent, no markers", Markers{Parent: prodParent}, false, SourceNone},
	}

	c := newTestClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Classify(tt.markers)
			require.NoError(t, err)
			assert.Equal(t, tt.wantShadow, res.Shadow)
			assert.Equal(t, tt.wantSource, res.Source)
		})
	}
}

func TestClassify_Debug(t *testing.T) {
	c := newTestClassifier()

	res, err := c.Classify(Markers{Debug: "1"})
	require.NoError(t, err)
	assert.True(t, res.Debug)
	assert.False(t, res.Shadow)

	res, err = c.Classify(Markers{Parent: xinvoke.NewRoot(xinvoke.WithDebug(true))})
	require.NoError(t, err)
	assert.True(t, res.Debug)
}

func TestClassify_SwitchOff(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := xreportmock.NewMockReporter(ctrl)

	sw := NewSwitch(true)
	sw.Disable("agent-0008", "manual close")
	c := newTestClassifier(WithSwitch(sw), WithReporter(reporter))

	reporter.EXPECT().Report(gomock.Any()).Do(func(rec xreport.Record) {
		assert.Equal(t, xreport.CodeShadowDisabled, rec.Code)
		assert.Equal(t, xreport.TypeAgent, rec.Type)
		assert.Contains(t, rec.Detail, "header=1")
	})

	res, err := c.Classify(Markers{ClusterTest: "1"})
	assert.True(t, res.Shadow, "不降级为生产")

	var sde *ShadowDisabledError
	require.ErrorAs(t, err, &sde)
	assert.Equal(t, SourceHeader, sde.Source)
	assert.Equal(t, "manual close", sde.Reason)
	assert.ErrorIs(t, err, ErrShadowDisabled)
	assert.ErrorIs(t, err, xreport.ErrConfiguration)

	// 生产流量不受开关影响
	res, err = c.Classify(Markers{Names: []string{"orders"}})
	require.NoError(t, err)
	assert.False(t, res.Shadow)
}

func TestClassify_CustomNaming(t *testing.T) {
	c := newTestClassifier(WithNaming(Naming{Prefix: "shadow."}))
	res, err := c.Classify(Markers{Names: []string{"shadow.orders"}})
	require.NoError(t, err)
	assert.True(t, res.Shadow)

	res, err = c.Classify(Markers{Names: []string{"PT_orders"}})
	require.NoError(t, err)
	assert.False(t, res.Shadow)

	c.SetNaming(DefaultNaming)
	res, _ = c.Classify(Markers{Names: []string{"PT_orders"}})
	assert.True(t, res.Shadow)
}

func TestClassifyContext(t *testing.T) {
	c := newTestClassifier()

	t.Run("new root from upstream", func(t *testing.T) {
		ctx, ic, res, err := c.ClassifyContext(context.Background(),
			Markers{ClusterTest: "1", TraceID: "t1", InvokeID: "0.2"}, xinvoke.InvokeWebServer)
		require.NoError(t, err)
		assert.True(t, res.Shadow)
		assert.Equal(t, "t1", ic.TraceID())
		assert.Equal(t, "0.2", ic.InvokeID())
		assert.True(t, xinvoke.IsClusterTest(ctx))
		require.NoError(t, xinvoke.Exit(ctx))
	})

	t.Run("child of ambient context", func(t *testing.T) {
		ctx, root, err := xinvoke.Enter(context.Background(), xinvoke.InvokeJob)
		require.NoError(t, err)

		ctx2, ic, res, err := c.ClassifyContext(ctx, Markers{Names: []string{"PT_orders"}}, xinvoke.InvokeMQ)
		require.NoError(t, err)
		assert.True(t, res.Shadow)
		assert.Same(t, root, ic.Parent())
		assert.Equal(t, "0.1", ic.InvokeID())
		assert.True(t, xinvoke.IsClusterTest(ctx2))
		assert.False(t, root.IsClusterTest(), "父上下文不被追溯修改")

		require.NoError(t, xinvoke.Exit(ctx2))
		assert.Same(t, root, xinvoke.Current(ctx))
	})

	t.Run("rejected does not push", func(t *testing.T) {
		sw := NewSwitch(false)
		c := newTestClassifier(WithSwitch(sw))
		ctx, ic, _, err := c.ClassifyContext(context.Background(), Markers{ClusterTest: "1"}, xinvoke.InvokeRPC)
		assert.True(t, errors.Is(err, ErrShadowDisabled))
		assert.Nil(t, ic)
		assert.Nil(t, xinvoke.Current(ctx))
	})
}

func TestIsShadowHeader(t *testing.T) {
	assert.True(t, IsShadowHeader("1"))
	assert.True(t, IsShadowHeader("True"))
	assert.False(t, IsShadowHeader("0"))
	assert.False(t, IsShadowHeader(""))
}

func TestMarkersFrom(t *testing.T) {
	m := MarkersFrom(xinvoke.Incoming{TraceID: "t", InvokeID: "0.1", ClusterTest: "1", Debug: "true"}, "PT_q")
	assert.Equal(t, "1", m.ClusterTest)
	assert.Equal(t, "true", m.Debug)
	assert.Equal(t, []string{"PT_q"}, m.Names)
	assert.Equal(t, "t", m.TraceID)
}
