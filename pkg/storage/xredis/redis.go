package xredis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xshadow/pkg/config/xshadowconf"
	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xmediator"
	"github.com/omeyang/xshadow/pkg/shadow/xreport"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// DefaultPingTimeout 新影子客户端连通性检查的默认超时。
const DefaultPingTimeout = 3 * time.Second

// Option Manager 配置选项。
type Option func(*Manager)

// WithGate 设置白名单，影子流量的键需在 cache_key 白名单中。
func WithGate(g *xwhitelist.Gate) Option {
	return func(m *Manager) { m.gate = g }
}

// WithMediator 设置 Mediator。
func WithMediator(md *xmediator.Mediator) Option {
	return func(m *Manager) {
		if md != nil {
			m.mediator = md
		}
	}
}

// WithPingTimeout 设置新影子客户端连通性检查的超时。
func WithPingTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pingTimeout = d
		}
	}
}

// WithLogger 设置日志器。
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager 按逻辑名称管理业务/影子 Redis 客户端对。
type Manager struct {
	conf        xshadowconf.Provider
	gate        *xwhitelist.Gate
	mediator    *xmediator.Mediator
	pingTimeout time.Duration
	logger      *slog.Logger
	reg         *xmediator.Registry[*redis.Client]
}

// New 创建 Manager。
func New(conf xshadowconf.Provider, opts ...Option) (*Manager, error) {
	if conf == nil {
		return nil, ErrNilProvider
	}
	m := &Manager{conf: conf, pingTimeout: DefaultPingTimeout, logger: xlog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	if m.mediator == nil {
		m.mediator = xmediator.New(xmediator.WithLogger(m.logger))
	}
	m.reg = xmediator.NewRegistry[*redis.Client](m.mediator)
	return m, nil
}

// Register 注册业务客户端，同名重复注册返回已有的实例。
func (m *Manager) Register(name string, business *redis.Client) (*Redis, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if business == nil {
		return nil, ErrNilClient
	}
	b := m.reg.GetOrBind(name, business, m.deriver(name),
		xmediator.WithIdentity(business.Options().Addr),
		xmediator.WithRecordType(xreport.TypeCache),
		xmediator.WithCloser(func(c *redis.Client) error {
			if c == business {
				return nil
			}
			return c.Close()
		}))
	return &Redis{name: name, mgr: m, binding: b}, nil
}

func (m *Manager) deriver(name string) xmediator.Deriver[*redis.Client] {
	return func(ctx context.Context, business *redis.Client) (*redis.Client, error) {
		cfg, ok := m.conf.Current().RedisFor(name)
		if !ok {
			return nil, fmt.Errorf("%w: redis %s", xmediator.ErrNoShadowConfig, name)
		}
		if cfg.Addr == "" {
			return business, nil
		}

		opt := *business.Options()
		opt.Addr = cfg.Addr
		opt.Username = cfg.Username
		opt.Password = cfg.Password
		opt.DB = cfg.DB
		shadow := redis.NewClient(&opt)
		shadow.AddHook(guardHook{})

		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.pingTimeout)
		defer cancel()
		if err := shadow.Ping(pctx).Err(); err != nil {
			return nil, errors.Join(fmt.Errorf("xredis: ping shadow %s: %w", name, err), shadow.Close())
		}
		m.logger.InfoContext(ctx, "xredis: shadow client created",
			slog.String("name", name), slog.String("addr", cfg.Addr), slog.Int("db", cfg.DB))
		return shadow, nil
	}
}

// ResetAll 关闭所有独立的影子客户端，实现 xshadowconf.Resetter。
func (m *Manager) ResetAll() error { return m.reg.ResetAll() }

// Close 关闭所有影子客户端。业务客户端由调用方关闭。
func (m *Manager) Close() error { return m.reg.Close() }

// =============================================================================
// Redis
// =============================================================================

// Redis 一个已注册的 Redis 逻辑实例。
type Redis struct {
	name    string
	mgr     *Manager
	binding *xmediator.Binding[*redis.Client]
}

// Name 返回逻辑名称。
func (r *Redis) Name() string { return r.name }

// Binding 返回业务/影子客户端绑定。
func (r *Redis) Binding() *xmediator.Binding[*redis.Client] { return r.binding }

// Client 按 ctx 的流量类型返回客户端。
func (r *Redis) Client(ctx context.Context) (*redis.Client, error) {
	return r.binding.ResolveContext(ctx)
}

// Key 返回 ctx 下实际访问的键。
//
// 生产流量原样返回。影子流量先按业务键做 cache_key 白名单检查，
// 再按配置加前缀：独立实例只在配置了 key_prefix 时加，复用业务实例时默认加 PT_。
// 找不到影子配置时返回错误。
func (r *Redis) Key(ctx context.Context, key string) (string, error) {
	if !xinvoke.IsClusterTest(ctx) {
		return key, nil
	}
	cfg, ok := r.mgr.conf.Current().RedisFor(r.name)
	prefix := prefixOf(cfg)
	business := key
	if prefix != "" {
		business = strings.TrimPrefix(key, prefix)
	}
	if g := r.mgr.gate; g != nil {
		if err := g.Enforce(ctx, business, xwhitelist.KindCacheKey); err != nil {
			return "", err
		}
	}
	if !ok {
		return "", fmt.Errorf("%w: redis %s", xmediator.ErrNoShadowConfig, r.name)
	}
	return prefix + business, nil
}

func prefixOf(cfg xshadowconf.RedisConfig) string {
	switch {
	case cfg.KeyPrefix != "":
		return cfg.KeyPrefix
	case cfg.Addr == "":
		return xclassify.DefaultPrefix
	default:
		return ""
	}
}

// Get 读取 key。
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	c, k, err := r.route(ctx, key)
	if err != nil {
		return "", err
	}
	return c.Get(ctx, k).Result()
}

// Set 写入 key。
func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c, k, err := r.route(ctx, key)
	if err != nil {
		return err
	}
	return c.Set(ctx, k, value, ttl).Err()
}

// Del 删除 key。
func (r *Redis) Del(ctx context.Context, key string) error {
	c, k, err := r.route(ctx, key)
	if err != nil {
		return err
	}
	return c.Del(ctx, k).Err()
}

func (r *Redis) route(ctx context.Context, key string) (*redis.Client, string, error) {
	k, err := r.Key(ctx, key)
	if err != nil {
		return nil, "", err
	}
	c, err := r.Client(ctx)
	if err != nil {
		return nil, "", err
	}
	return c, k, nil
}

// =============================================================================
// 隔离钩子
// =============================================================================

// guardHook 挂在独立影子客户端上，拒绝非影子 ctx 的命令。
type guardHook struct{}

var _ redis.Hook = guardHook{}

func (guardHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (guardHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if !xinvoke.IsClusterTest(ctx) {
			err := fmt.Errorf("%w: %s", ErrProductionOnShadow, cmd.Name())
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (guardHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if !xinvoke.IsClusterTest(ctx) {
			err := fmt.Errorf("%w: pipeline", ErrProductionOnShadow)
			for _, cmd := range cmds {
				cmd.SetErr(err)
			}
			return err
		}
		return next(ctx, cmds)
	}
}
