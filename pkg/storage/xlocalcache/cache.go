package xlocalcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/omeyang/xshadow/pkg/config/xshadowconf"
	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xmediator"
	"github.com/omeyang/xshadow/pkg/shadow/xreport"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// 影子缓存默认容量。
const (
	DefaultMaxCost     int64 = 1 << 20
	DefaultNumCounters int64 = 1e5
	DefaultBufferItems int64 = 64
)

// Option 缓存配置选项。
type Option func(*options)

type options struct {
	gate     *xwhitelist.Gate
	mediator *xmediator.Mediator
	logger   *slog.Logger
}

// WithGate 设置白名单，影子流量的键需在 cache_key 白名单中。
func WithGate(g *xwhitelist.Gate) Option {
	return func(o *options) { o.gate = g }
}

// WithMediator 设置 Mediator。
func WithMediator(m *xmediator.Mediator) Option {
	return func(o *options) {
		if m != nil {
			o.mediator = m
		}
	}
}

// WithLogger 设置日志器。
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Cache 按流量类型路由的本地缓存，并发安全。
type Cache[V any] struct {
	name    string
	gate    *xwhitelist.Gate
	binding *xmediator.Binding[*ristretto.Cache[string, V]]
}

// New 为业务缓存创建影子路由。name 用于匹配配置中的 caches 条目。
//
// 业务缓存由调用方关闭；Close 只关闭影子缓存。
func New[V any](name string, conf xshadowconf.Provider, business *ristretto.Cache[string, V], opts ...Option) (*Cache[V], error) {
	switch {
	case name == "":
		return nil, ErrEmptyName
	case conf == nil:
		return nil, ErrNilProvider
	case business == nil:
		return nil, ErrNilCache
	}
	o := options{logger: xlog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.mediator == nil {
		o.mediator = xmediator.New(xmediator.WithLogger(o.logger))
	}

	derive := func(_ context.Context, _ *ristretto.Cache[string, V]) (*ristretto.Cache[string, V], error) {
		maxCost, counters := DefaultMaxCost, DefaultNumCounters
		if cfg, ok := conf.Current().CacheFor(name); ok {
			if cfg.MaxCost > 0 {
				maxCost = cfg.MaxCost
			}
			if cfg.NumCounters > 0 {
				counters = cfg.NumCounters
			}
		}
		c, err := ristretto.NewCache(&ristretto.Config[string, V]{
			NumCounters: counters,
			MaxCost:     maxCost,
			BufferItems: DefaultBufferItems,
		})
		if err != nil {
			return nil, fmt.Errorf("xlocalcache: create shadow %s: %w", name, err)
		}
		o.logger.Info("xlocalcache: shadow cache created",
			slog.String("name", name), slog.Int64("max_cost", maxCost))
		return c, nil
	}

	return &Cache[V]{
		name: name,
		gate: o.gate,
		binding: xmediator.Bind(o.mediator, name, business, derive,
			xmediator.WithIdentity("local:"+name),
			xmediator.WithRecordType(xreport.TypeCache),
			xmediator.WithCloser(func(c *ristretto.Cache[string, V]) error {
				c.Close()
				return nil
			})),
	}, nil
}

// Name 返回缓存名称。
func (c *Cache[V]) Name() string { return c.name }

// Binding 返回业务/影子缓存绑定。
func (c *Cache[V]) Binding() *xmediator.Binding[*ristretto.Cache[string, V]] { return c.binding }

func (c *Cache[V]) resolve(ctx context.Context, key string) (*ristretto.Cache[string, V], error) {
	if !xinvoke.IsClusterTest(ctx) {
		return c.binding.Business(), nil
	}
	if c.gate != nil {
		if err := c.gate.Enforce(ctx, key, xwhitelist.KindCacheKey); err != nil {
			return nil, err
		}
	}
	return c.binding.Resolve(ctx, true)
}

// Get 读取 key。
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	rc, err := c.resolve(ctx, key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	v, ok := rc.Get(key)
	return v, ok, nil
}

// Set 写入 key，返回是否被接受。被拒绝的写入可能是容量策略丢弃。
func (c *Cache[V]) Set(ctx context.Context, key string, value V, cost int64) (bool, error) {
	return c.SetWithTTL(ctx, key, value, cost, 0)
}

// SetWithTTL 写入 key 并设置过期时间，ttl 为 0 表示不过期。
func (c *Cache[V]) SetWithTTL(ctx context.Context, key string, value V, cost int64, ttl time.Duration) (bool, error) {
	rc, err := c.resolve(ctx, key)
	if err != nil {
		return false, err
	}
	return rc.SetWithTTL(key, value, cost, ttl), nil
}

// Del 删除 key。
func (c *Cache[V]) Del(ctx context.Context, key string) error {
	rc, err := c.resolve(ctx, key)
	if err != nil {
		return err
	}
	rc.Del(key)
	return nil
}

// Wait 等待 ctx 对应缓存的缓冲写入完成。影子缓存尚未创建时直接返回。
func (c *Cache[V]) Wait(ctx context.Context) {
	if !xinvoke.IsClusterTest(ctx) {
		c.binding.Business().Wait()
		return
	}
	if rc, ok := c.binding.Shadow(); ok {
		rc.Wait()
	}
}

// ResetAll 丢弃影子缓存，实现 xshadowconf.Resetter。
func (c *Cache[V]) ResetAll() error { return c.binding.Reset() }

// Close 关闭影子缓存。
func (c *Cache[V]) Close() error { return c.binding.Close() }
