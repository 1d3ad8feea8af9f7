package xmongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xshadow/pkg/config/xshadowconf"
	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xmediator"
)

// 默认超时。
const (
	DefaultPingTimeout       = 5 * time.Second
	DefaultDisconnectTimeout = 10 * time.Second
)

// Option Manager 配置选项。
type Option func(*Manager)

// WithMediator 设置 Mediator。
func WithMediator(md *xmediator.Mediator) Option {
	return func(m *Manager) {
		if md != nil {
			m.mediator = md
		}
	}
}

// WithPingTimeout 设置连接独立集群后 Ping 的超时。
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

// Manager 按逻辑名称管理业务/影子数据库句柄对。
type Manager struct {
	conf        xshadowconf.Provider
	mediator    *xmediator.Mediator
	pingTimeout time.Duration
	logger      *slog.Logger
	reg         *xmediator.Registry[*mongo.Database]
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
	m.reg = xmediator.NewRegistry[*mongo.Database](m.mediator)
	return m, nil
}

// Register 注册业务数据库，同名重复注册返回已有的实例。
func (m *Manager) Register(name string, business *mongo.Database) (*Database, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if business == nil {
		return nil, ErrNilDatabase
	}
	b := m.reg.GetOrBind(name, business, m.deriver(name),
		xmediator.WithIdentity(business.Name()),
		xmediator.WithCloser(func(db *mongo.Database) error {
			if db.Client() == business.Client() {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), DefaultDisconnectTimeout)
			defer cancel()
			return db.Client().Disconnect(ctx)
		}))
	return &Database{name: name, binding: b}, nil
}

func (m *Manager) deriver(name string) xmediator.Deriver[*mongo.Database] {
	return func(ctx context.Context, business *mongo.Database) (*mongo.Database, error) {
		cfg, ok := m.conf.Current().MongoFor(name)
		if !ok {
			return nil, fmt.Errorf("%w: mongo %s", xmediator.ErrNoShadowConfig, name)
		}
		dbName := cfg.Database
		if cfg.URI == "" {
			if dbName == "" {
				dbName = xclassify.DefaultNaming.Shadow(business.Name())
			}
			return business.Client().Database(dbName), nil
		}
		if dbName == "" {
			dbName = business.Name()
		}

		client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
		if err != nil {
			return nil, fmt.Errorf("xmongo: connect shadow %s: %w", name, err)
		}
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.pingTimeout)
		defer cancel()
		if err := client.Ping(pctx, nil); err != nil {
			return nil, errors.Join(fmt.Errorf("xmongo: ping shadow %s: %w", name, err),
				client.Disconnect(context.WithoutCancel(ctx)))
		}
		m.logger.InfoContext(ctx, "xmongo: shadow client connected",
			slog.String("name", name), slog.String("database", dbName))
		return client.Database(dbName), nil
	}
}

// ResetAll 断开所有独立影子集群的连接，实现 xshadowconf.Resetter。
func (m *Manager) ResetAll() error { return m.reg.ResetAll() }

// Close 断开所有影子连接。业务连接由调用方断开。
func (m *Manager) Close() error { return m.reg.Close() }

// Database 一个已注册的 MongoDB 逻辑库。
type Database struct {
	name    string
	binding *xmediator.Binding[*mongo.Database]
}

// Name 返回逻辑名称。
func (d *Database) Name() string { return d.name }

// Binding 返回业务/影子数据库绑定。
func (d *Database) Binding() *xmediator.Binding[*mongo.Database] { return d.binding }

// DB 按 ctx 的流量类型返回数据库句柄。
func (d *Database) DB(ctx context.Context) (*mongo.Database, error) {
	return d.binding.ResolveContext(ctx)
}

// Collection 按 ctx 的流量类型返回集合。
func (d *Database) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	db, err := d.DB(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}
