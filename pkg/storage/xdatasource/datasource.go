package xdatasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/omeyang/xshadow/pkg/config/xshadowconf"
	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xmediator"
)

// DefaultPingTimeout 新影子连接池连通性检查的默认超时。
const DefaultPingTimeout = 5 * time.Second

// OpenFunc 打开连接池，默认 sql.Open。
type OpenFunc func(driver, dsn string) (*sql.DB, error)

// Option Manager 配置选项。
type Option func(*Manager)

// WithMediator 设置 Mediator，决定派生失败的上报方式。
func WithMediator(m *xmediator.Mediator) Option {
	return func(mgr *Manager) {
		if m != nil {
			mgr.mediator = m
		}
	}
}

// WithOpen 设置连接池打开函数。
func WithOpen(fn OpenFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.open = fn
		}
	}
}

// WithPingTimeout 设置新影子连接池连通性检查的超时。
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

// =============================================================================
// Manager
// =============================================================================

// Manager 按数据源名称管理业务/影子连接池对，并发安全。
type Manager struct {
	conf     xshadowconf.Provider
	mediator *xmediator.Mediator
	open        OpenFunc
	pingTimeout time.Duration
	logger      *slog.Logger

	reg *xmediator.Registry[*sql.DB]
}

// New 创建 Manager。conf 通常是 *xshadowconf.Store。
func New(conf xshadowconf.Provider, opts ...Option) (*Manager, error) {
	if conf == nil {
		return nil, ErrNilProvider
	}
	m := &Manager{
		conf:        conf,
		open:        sql.Open,
		pingTimeout: DefaultPingTimeout,
		logger:      xlog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.mediator == nil {
		m.mediator = xmediator.New(xmediator.WithLogger(m.logger))
	}
	m.reg = xmediator.NewRegistry[*sql.DB](m.mediator)
	return m, nil
}

// DataSource 一个已注册的数据源。
type DataSource struct {
	name    string
	mgr     *Manager
	binding *xmediator.Binding[*sql.DB]
}

// Register 注册业务连接池，同名重复注册返回已有的数据源。
//
// name 是影子配置中用于匹配的数据源名称，如 JNDI 名 jdbc/users。
func (m *Manager) Register(name string, business *sql.DB) (*DataSource, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if business == nil {
		return nil, ErrNilDB
	}
	b := m.reg.GetOrBind(name, business, m.deriver(name),
		xmediator.WithIdentity(name),
		xmediator.WithCloser(func(db *sql.DB) error {
			// 影子表模式下影子与业务是同一个连接池
			if db == business {
				return nil
			}
			return db.Close()
		}))
	return &DataSource{name: name, mgr: m, binding: b}, nil
}

func (m *Manager) deriver(name string) xmediator.Deriver[*sql.DB] {
	return func(ctx context.Context, business *sql.DB) (*sql.DB, error) {
		ds, ok := m.conf.Current().DataSourceFor(name)
		if !ok {
			return nil, fmt.Errorf("%w: datasource %s", xmediator.ErrNoShadowConfig, name)
		}
		if ds.ShadowTable {
			return business, nil
		}
		if ds.Driver == "" {
			return nil, fmt.Errorf("%w: datasource %s", ErrEmptyDriver, name)
		}

		db, err := m.open(ds.Driver, DSN(ds))
		if err != nil {
			return nil, fmt.Errorf("xdatasource: open shadow %s: %w", name, err)
		}
		if ds.MaxOpen > 0 {
			db.SetMaxOpenConns(ds.MaxOpen)
		}
		if ds.MaxIdle > 0 {
			db.SetMaxIdleConns(ds.MaxIdle)
		}
		// 派生在绑定锁内执行：不随首个调用方取消，且有超时上限
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.pingTimeout)
		defer cancel()
		if err := db.PingContext(pctx); err != nil {
			return nil, errors.Join(fmt.Errorf("xdatasource: ping shadow %s: %w", name, err), db.Close())
		}
		m.logger.InfoContext(ctx, "xdatasource: shadow pool opened",
			slog.String("datasource", name),
			slog.String("driver", ds.Driver),
			slog.String("url", Redact(ds.URL)))
		return db, nil
	}
}

// Get 返回已注册的数据源。
func (m *Manager) Get(name string) (*DataSource, bool) {
	b, ok := m.reg.Get(name)
	if !ok {
		return nil, false
	}
	return &DataSource{name: name, mgr: m, binding: b}, true
}

// ResetAll 关闭所有已打开的影子连接池，实现 xshadowconf.Resetter。
func (m *Manager) ResetAll() error { return m.reg.ResetAll() }

// Close 关闭所有影子连接池。业务连接池由调用方关闭。
func (m *Manager) Close() error { return m.reg.Close() }

// Name 返回数据源名称。
func (d *DataSource) Name() string { return d.name }

// Binding 返回业务/影子连接池绑定。
func (d *DataSource) Binding() *xmediator.Binding[*sql.DB] { return d.binding }

// DB 按 ctx 的流量类型返回连接池。
//
// 影子流量找不到影子配置或打开失败时返回 *xmediator.ShadowUnavailableError，
// 不会回退到业务连接池。
func (d *DataSource) DB(ctx context.Context) (*sql.DB, error) {
	return d.binding.ResolveContext(ctx)
}

// Table 返回 ctx 下应访问的表名：影子表模式的影子流量加 PT_ 前缀，其余原样返回。
func (d *DataSource) Table(ctx context.Context, table string) string {
	if !xinvoke.IsClusterTest(ctx) {
		return table
	}
	ds, ok := d.mgr.conf.Current().DataSourceFor(d.name)
	if !ok || !ds.ShadowTable {
		return table
	}
	return tableNaming.Shadow(table)
}

var tableNaming = xclassify.Naming{Prefix: xclassify.DefaultPrefix}

// ExecContext 在 ctx 对应的连接池上执行。
func (d *DataSource) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := d.DB(ctx)
	if err != nil {
		return nil, err
	}
	return db.ExecContext(ctx, query, args...)
}

// QueryContext 在 ctx 对应的连接池上查询。
func (d *DataSource) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	db, err := d.DB(ctx)
	if err != nil {
		return nil, err
	}
	return db.QueryContext(ctx, query, args...)
}

// =============================================================================
// DSN
// =============================================================================

// DSN 返回打开影子连接池的数据源串。
//
// URL 带协议且未包含用户信息时，Username 与 Password 写入 URL；
// 其他形式的 DSN 原样返回。
func DSN(ds xshadowconf.DataSource) string {
	if ds.Username == "" {
		return ds.URL
	}
	u, err := url.Parse(ds.URL)
	if err != nil || u.Scheme == "" || u.Host == "" || u.User != nil {
		return ds.URL
	}
	if ds.Password != "" {
		u.User = url.UserPassword(ds.Username, ds.Password)
	} else {
		u.User = url.User(ds.Username)
	}
	return u.String()
}

// Redact 去掉 URL 中的密码，用于日志。非 URL 形式原样返回。
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
