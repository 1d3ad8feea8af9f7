package xgrpcshadow

import (
	"context"
	"log/slog"

	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// Enforcer 白名单检查，*xwhitelist.Gate 实现了此接口。
type Enforcer interface {
	Enforce(ctx context.Context, target string, kind xwhitelist.Kind) error
}

var _ Enforcer = (*xwhitelist.Gate)(nil)

// Option 拦截器配置选项。
type Option func(*config)

type config struct {
	gate   Enforcer
	logger *slog.Logger
}

func newConfig(opts []Option) *config {
	cfg := &config{logger: xlog.Default()}
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
