package xkafka

import (
	"log/slog"
	"time"

	"github.com/omeyang/xshadow/internal/mqcore"
	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/observability/xmetrics"
	"github.com/omeyang/xshadow/pkg/resilience/xretry"
	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
)

// Enforcer 出站主题的白名单检查，*xwhitelist.Gate 实现了此接口。
type Enforcer = mqcore.Enforcer

// 默认值。
const (
	DefaultPollTimeout  = 100 * time.Millisecond
	DefaultFlushTimeout = 10 * time.Second
)

type options struct {
	classifier   *xclassify.Classifier
	gate         Enforcer
	propagator   mqcore.Propagator
	observer     xmetrics.Observer
	logger       *slog.Logger
	pollTimeout  time.Duration
	flushTimeout time.Duration
	backoff      xretry.BackoffPolicy
}

func defaultOptions() options {
	return options{
		propagator:   mqcore.DefaultPropagator(),
		observer:     xmetrics.NoopObserver{},
		logger:       xlog.Default(),
		pollTimeout:  DefaultPollTimeout,
		flushTimeout: DefaultFlushTimeout,
		backoff:      mqcore.DefaultBackoff(),
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.classifier == nil {
		o.classifier = xclassify.New(xclassify.WithLogger(o.logger), xclassify.WithObserver(o.observer))
	}
	return o
}

// Option Producer、Consumer 与 Subscriber 共用的选项。
type Option func(*options)

// WithClassifier 设置判定器。消费端用它判定消息，生产端用它的命名规则改写主题。
func WithClassifier(c *xclassify.Classifier) Option {
	return func(o *options) {
		if c != nil {
			o.classifier = c
		}
	}
}

// WithGate 设置出站主题的白名单检查。
func WithGate(g Enforcer) Option {
	return func(o *options) { o.gate = g }
}

// WithPropagator 设置消息头传播器，默认同时传播 W3C 追踪头。
func WithPropagator(p mqcore.Propagator) Option {
	return func(o *options) { o.propagator = p }
}

// WithObserver 设置观测器。
func WithObserver(ob xmetrics.Observer) Option {
	return func(o *options) {
		if ob != nil {
			o.observer = ob
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

// WithPollTimeout 设置单次轮询超时。
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollTimeout = d
		}
	}
}

// WithFlushTimeout 设置 Producer 关闭时等待发出的超时。
func WithFlushTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.flushTimeout = d
		}
	}
}

// WithBackoff 设置消费循环出错后的退避策略。
func WithBackoff(b xretry.BackoffPolicy) Option {
	return func(o *options) {
		if b != nil {
			o.backoff = b
		}
	}
}
