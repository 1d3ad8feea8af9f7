package xpulsar

import (
	"log/slog"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xshadow/internal/mqcore"
	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/observability/xmetrics"
	"github.com/omeyang/xshadow/pkg/resilience/xretry"
	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xmediator"
)

const componentName = "xpulsar"

// Client 创建生产者与消费者，pulsar.Client 实现了此接口。
type Client interface {
	CreateProducer(options pulsar.ProducerOptions) (pulsar.Producer, error)
	Subscribe(options pulsar.ConsumerOptions) (pulsar.Consumer, error)
}

var _ Client = pulsar.Client(nil)

// Enforcer 出站主题的白名单检查，*xwhitelist.Gate 实现了此接口。
type Enforcer = mqcore.Enforcer

type options struct {
	classifier *xclassify.Classifier
	gate       Enforcer
	mediator   *xmediator.Mediator
	propagator mqcore.Propagator
	observer   xmetrics.Observer
	logger     *slog.Logger
	backoff    xretry.BackoffPolicy
	subType    pulsar.SubscriptionType
}

func buildOptions(opts []Option) options {
	o := options{
		propagator: mqcore.DefaultPropagator(),
		observer:   xmetrics.NoopObserver{},
		logger:     xlog.Default(),
		backoff:    mqcore.DefaultBackoff(),
		subType:    pulsar.Shared,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.classifier == nil {
		o.classifier = xclassify.New(xclassify.WithLogger(o.logger), xclassify.WithObserver(o.observer))
	}
	if o.mediator == nil {
		o.mediator = xmediator.New(xmediator.WithLogger(o.logger), xmediator.WithObserver(o.observer))
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

// WithMediator 设置创建影子生产者时使用的 Mediator，决定派生失败的上报方式。
func WithMediator(m *xmediator.Mediator) Option {
	return func(o *options) {
		if m != nil {
			o.mediator = m
		}
	}
}

// WithPropagator 设置消息属性传播器，默认同时传播 W3C 追踪头。
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

// WithBackoff 设置消费循环出错后的退避策略。
func WithBackoff(b xretry.BackoffPolicy) Option {
	return func(o *options) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithSubscriptionType 设置 Subscriber 建立的影子订阅类型，默认 Shared。
func WithSubscriptionType(t pulsar.SubscriptionType) Option {
	return func(o *options) { o.subType = t }
}

func pulsarAttrs(topic string, shadow bool) []xmetrics.Attr {
	attrs := []xmetrics.Attr{
		xmetrics.String("messaging.system", "pulsar"),
		xmetrics.Bool("shadow", shadow),
	}
	if topic != "" {
		attrs = append(attrs, xmetrics.String("messaging.destination", topic))
	}
	return attrs
}
