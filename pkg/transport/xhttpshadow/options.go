package xhttpshadow

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// Enforcer 白名单检查，*xwhitelist.Gate 实现了此接口。
type Enforcer interface {
	Enforce(ctx context.Context, target string, kind xwhitelist.Kind) error
}

var _ Enforcer = (*xwhitelist.Gate)(nil)

// Option 中间件与 Transport 的配置选项。
type Option func(*config)

type config struct {
	gate           Enforcer
	logger         *slog.Logger
	rejectStatus   int
	deniedStatus   int
	inboundTarget  func(*http.Request) string
	outboundTarget func(*http.Request) string
}

func newConfig(opts []Option) *config {
	cfg := &config{
		logger:         xlog.Default(),
		rejectStatus:   http.StatusServiceUnavailable,
		deniedStatus:   http.StatusForbidden,
		inboundTarget:  func(r *http.Request) string { return r.URL.Path },
		outboundTarget: func(r *http.Request) string { return r.URL.String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithGate 设置白名单闸门。未设置时不做白名单检查。
func WithGate(g Enforcer) Option {
	return func(c *config) { c.gate = g }
}

// WithLogger 设置日志器。
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRejectStatus 设置影子开关关闭时的响应状态码，默认 503。
func WithRejectStatus(code int) Option {
	return func(c *config) {
		if code > 0 {
			c.rejectStatus = code
		}
	}
}

// WithDeniedStatus 设置白名单拒绝时的响应状态码，默认 403。
func WithDeniedStatus(code int) Option {
	return func(c *config) {
		if code > 0 {
			c.deniedStatus = code
		}
	}
}

// WithInboundTarget 设置入站请求的白名单目标，默认 URL 路径。
func WithInboundTarget(fn func(*http.Request) string) Option {
	return func(c *config) {
		if fn != nil {
			c.inboundTarget = fn
		}
	}
}

// WithOutboundTarget 设置出站请求的白名单目标，默认完整 URL。
func WithOutboundTarget(fn func(*http.Request) string) Option {
	return func(c *config) {
		if fn != nil {
			c.outboundTarget = fn
		}
	}
}
