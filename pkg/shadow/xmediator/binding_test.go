package xmediator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xreport"
	"github.com/omeyang/xshadow/pkg/shadow/xreport/xreportmock"
)

// fakeBackend 模拟一个数据源。
type fakeBackend struct {
	url    string
	closed atomic.Bool
}

func (f *fakeBackend) Close() error {
	f.closed.Store(true)
	return nil
}

type shadowDS struct {
	name string
	url  string
}

func quietMediator(opts ...Option) *Mediator {
	return New(append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)...)
}

func urlDeriver(configs []shadowDS, counter *atomic.Int32) Deriver[*fakeBackend] {
	return func(_ context.Context, biz *fakeBackend) (*fakeBackend, error) {
		if counter != nil {
			counter.Add(1)
		}
		host := strings.TrimPrefix(biz.url, "jdbc:mysql://")
		host, _, _ = strings.Cut(host, "/")
		c, ok := Match(configs, func(c shadowDS) string { return c.name }, host)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoShadowConfig, biz.url)
		}
		return &fakeBackend{url: c.url}, nil
	}
}

func TestResolve_ProductionDeterministic(t *testing.T) {
	var derived atomic.Int32
	biz := &fakeBackend{url: "jdbc:mysql://biz/db"}
	b := Bind(quietMediator(), "orders", biz, urlDeriver(nil, &derived))

	for range 10 {
		got, err := b.Resolve(context.Background(), false)
		require.NoError(t, err)
		assert.Same(t, biz, got)
	}
	assert.Zero(t, derived.Load(), "生产流量从不派生")
}

func TestResolve_BusinessMissing(t *testing.T) {
	b := Bind[*fakeBackend](quietMediator(), "orders", nil, urlDeriver(nil, nil))
	_, err := b.Resolve(context.Background(), false)
	assert.ErrorIs(t, err, ErrBusinessMissing)
	assert.ErrorIs(t, err, xreport.ErrConfiguration)

	_, err = Resolve[*fakeBackend](context.Background(), nil, true)
	assert.ErrorIs(t, err, ErrBusinessMissing)
}

func TestResolve_ShadowDatasourceScenario(t *testing.T) {
	biz := &fakeBackend{url: "jdbc:mysql://biz/db"}
	configs := []shadowDS{{name: "biz", url: "jdbc:mysql://shadow/db"}}
	b := Bind(quietMediator(), "orders", biz, urlDeriver(configs, nil), WithIdentity(biz.url))

	first, err := Resolve(context.Background(), b, true)
	require.NoError(t, err)
	assert.Equal(t, "jdbc:mysql://shadow/db", first.url)

	second, err := Resolve(context.Background(), b, true)
	require.NoError(t, err)
	assert.Same(t, first, second, "第二次访问复用同一个影子后端")
	assert.Equal(t, int64(1), b.Derivations())

	prod, err := b.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Same(t, biz, prod)
}

func TestResolve_ConcurrentFirstAccessConstructsOnce(t *testing.T) {
	var derived atomic.Int32
	biz := &fakeBackend{url: "jdbc:mysql://biz/db"}
	configs := []shadowDS{{name: "biz", url: "jdbc:mysql://shadow/db"}}
	b := Bind(quietMediator(), "orders", biz, urlDeriver(configs, &derived))

	const n = 64
	start := make(chan struct{})
	results := make([]*fakeBackend, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, err := b.Resolve(context.Background(), true)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), derived.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestResolve_DerivationFailureNeverFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := xreportmock.NewMockReporter(ctrl)
	reporter.EXPECT().Report(gomock.Any()).Do(func(rec xreport.Record) {
		assert.Equal(t, xreport.CodeDataSourceUnavailable, rec.Code)
		assert.Equal(t, xreport.TypeDataSource, rec.Type)
		assert.Contains(t, rec.Detail, "jdbc:mysql://biz/db")
	}).Times(2)

	biz := &fakeBackend{url: "jdbc:mysql://biz/db"}
	b := Bind(quietMediator(WithReporter(reporter)), "orders", biz, urlDeriver(nil, nil), WithIdentity(biz.url))

	for range 2 {
		got, err := b.Resolve(context.Background(), true)
		assert.Nil(t, got)

		var sue *ShadowUnavailableError
		require.ErrorAs(t, err, &sue)
		assert.Equal(t, "orders", sue.Key)
		assert.Equal(t, "jdbc:mysql://biz/db", sue.BusinessIdentity)
		assert.ErrorIs(t, err, ErrShadowUnavailable)
		assert.ErrorIs(t, err, ErrNoShadowConfig)
		assert.ErrorIs(t, err, xreport.ErrConfiguration)
	}
	_, ok := b.Shadow()
	assert.False(t, ok)
}

func TestResolve_NilDeriverAndNilResult(t *testing.T) {
	biz := &fakeBackend{}
	b := Bind(quietMediator(), "k", biz, nil)
	_, err := b.Resolve(context.Background(), true)
	assert.ErrorIs(t, err, ErrNilDeriver)

	b2 := Bind(quietMediator(), "k", biz, func(context.Context, *fakeBackend) (*fakeBackend, error) {
		return nil, nil
	})
	_, err = b2.Resolve(context.Background(), true)
	assert.ErrorIs(t, err, ErrNoShadowConfig)
}

func TestResolve_SameBackend(t *testing.T) {
	biz := &fakeBackend{}
	b := Bind(quietMediator(), "k", biz, nil, WithSameBackend())
	got, err := b.Resolve(context.Background(), true)
	require.NoError(t, err)
	assert.Same(t, biz, got)
}

func TestResolveContext(t *testing.T) {
	biz := &fakeBackend{url: "jdbc:mysql://biz/db"}
	configs := []shadowDS{{name: "biz", url: "jdbc:mysql://shadow/db"}}
	b := Bind(quietMediator(), "orders", biz, urlDeriver(configs, nil))

	got, err := b.ResolveContext(context.Background())
	require.NoError(t, err)
	assert.Same(t, biz, got)

	ctx, err := xinvoke.EnterWith(context.Background(), xinvoke.NewRoot(xinvoke.WithClusterTest(true)))
	require.NoError(t, err)
	got, err = b.ResolveContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jdbc:mysql://shadow/db", got.url)
}

func TestBinding_ResetAndClose(t *testing.T) {
	biz := &fakeBackend{url: "jdbc:mysql://biz/db"}
	configs := []shadowDS{{name: "biz", url: "jdbc:mysql://shadow/db"}}
	b := Bind(quietMediator(), "orders", biz, urlDeriver(configs, nil))

	first, err := b.Resolve(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, b.Reset())
	assert.True(t, first.closed.Load())

	second, err := b.Resolve(context.Background(), true)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int64(2), b.Derivations())

	require.NoError(t, b.Close())
	assert.True(t, second.closed.Load())
	assert.False(t, biz.closed.Load(), "业务后端由调用方管理")
	require.NoError(t, b.Close())

	_, err = b.Resolve(context.Background(), true)
	assert.ErrorIs(t, err, ErrBindingClosed)
	require.NoError(t, b.Reset())
}

func TestBinding_CustomCloserError(t *testing.T) {
	boom := errors.New("close failed")
	biz := &fakeBackend{}
	b := Bind(quietMediator(), "k", biz,
		func(context.Context, *fakeBackend) (*fakeBackend, error) { return &fakeBackend{}, nil },
		WithCloser(func(*fakeBackend) error { return boom }))

	_, err := b.Resolve(context.Background(), true)
	require.NoError(t, err)
	assert.ErrorIs(t, b.Close(), boom)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry[*fakeBackend](quietMediator())
	derive := func(context.Context, *fakeBackend) (*fakeBackend, error) { return &fakeBackend{}, nil }

	a := r.GetOrBind("a", &fakeBackend{}, derive)
	assert.Same(t, a, r.GetOrBind("a", &fakeBackend{}, derive))
	r.GetOrBind("b", &fakeBackend{}, derive)
	assert.Equal(t, 2, r.Len())

	shadowA, err := a.Resolve(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, r.ResetAll())
	assert.True(t, shadowA.closed.Load())

	got, ok := r.Get("a")
	assert.True(t, ok)
	assert.Same(t, a, got)

	require.NoError(t, r.Close())
	assert.Equal(t, 0, r.Len())
}
