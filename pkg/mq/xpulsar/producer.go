package xpulsar

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xshadow/internal/mqcore"
	"github.com/omeyang/xshadow/pkg/observability/xmetrics"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xmediator"
	"github.com/omeyang/xshadow/pkg/shadow/xreport"
)

// Producer 影子感知的 Pulsar 生产者，并发安全。
//
// 影子生产者在第一条影子消息发送时创建，创建失败时返回
// *xmediator.ShadowUnavailableError，消息不会落到业务主题。
type Producer struct {
	topic   string
	binding *xmediator.Binding[pulsar.Producer]
	opts    options

	closeOnce sync.Once
	closeErr  error
}

// NewProducer 以 options 创建业务生产者，影子生产者复用 options 并改写主题。
func NewProducer(client Client, options pulsar.ProducerOptions, opts ...Option) (*Producer, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if options.Topic == "" {
		return nil, ErrEmptyTopic
	}
	business, err := client.CreateProducer(options)
	if err != nil {
		return nil, err
	}
	return newProducer(client, business, options, opts), nil
}

// WrapProducer 包装已有的业务生产者，影子生产者以业务生产者的主题派生。
func WrapProducer(client Client, business pulsar.Producer, opts ...Option) (*Producer, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if business == nil {
		return nil, ErrNilProducer
	}
	return newProducer(client, business, pulsar.ProducerOptions{Topic: business.Topic()}, opts), nil
}

func newProducer(client Client, business pulsar.Producer, base pulsar.ProducerOptions, opts []Option) *Producer {
	o := buildOptions(opts)
	derive := func(_ context.Context, _ pulsar.Producer) (pulsar.Producer, error) {
		so := base
		so.Topic = o.classifier.Naming().Shadow(base.Topic)
		// 生产者名称在主题内唯一，由 broker 分配
		so.Name = ""
		return client.CreateProducer(so)
	}
	return &Producer{
		topic: base.Topic,
		binding: xmediator.Bind(o.mediator, base.Topic, business, derive,
			xmediator.WithIdentity("pulsar:"+base.Topic),
			xmediator.WithRecordType(xreport.TypeMQ),
			xmediator.WithCloser(func(p pulsar.Producer) error {
				p.Close()
				return nil
			})),
		opts: o,
	}
}

// Topic 返回业务主题。
func (p *Producer) Topic() string { return p.topic }

// Binding 返回业务/影子生产者绑定，可交给 xmediator.Registry 统一重置。
func (p *Producer) Binding() *xmediator.Binding[pulsar.Producer] { return p.binding }

// prepare 选择目标生产者并返回写入传播属性后的消息副本。
func (p *Producer) prepare(ctx context.Context, msg *pulsar.ProducerMessage) (pulsar.Producer, *pulsar.ProducerMessage, bool, error) {
	_, shadow, err := mqcore.Route(ctx, p.opts.classifier.Naming(), p.opts.gate, p.topic)
	if err != nil {
		return nil, nil, shadow, err
	}
	target, err := p.binding.Resolve(ctx, shadow)
	if err != nil {
		return nil, nil, shadow, err
	}

	out := *msg
	out.Properties = maps.Clone(msg.Properties)
	if out.Properties == nil {
		out.Properties = map[string]string{}
	}
	if xinvoke.Current(ctx) != nil {
		delete(out.Properties, xinvoke.HeaderClusterTest)
		delete(out.Properties, xinvoke.HeaderDebug)
	}
	p.opts.propagator.Inject(ctx, out.Properties)
	return target, &out, shadow, nil
}

func (p *Producer) start(ctx context.Context, shadow bool) (context.Context, xmetrics.Span) {
	return xmetrics.Start(ctx, p.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "produce",
		Kind:      xmetrics.KindProducer,
		Attrs:     pulsarAttrs(p.topic, shadow),
	})
}

// Send 同步发送。msg 本身不被修改。
func (p *Producer) Send(ctx context.Context, msg *pulsar.ProducerMessage) (id pulsar.MessageID, err error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	target, out, shadow, err := p.prepare(ctx, msg)
	ctx, span := p.start(ctx, shadow)
	defer func() { span.End(xmetrics.Result{Err: err}) }()
	if err != nil {
		return nil, err
	}
	return target.Send(ctx, out)
}

// SendAsync 异步发送，callback 收到的是写入传播属性后的消息副本。
func (p *Producer) SendAsync(ctx context.Context, msg *pulsar.ProducerMessage, callback func(pulsar.MessageID, *pulsar.ProducerMessage, error)) {
	if msg == nil {
		callback(nil, nil, ErrNilMessage)
		return
	}
	target, out, shadow, err := p.prepare(ctx, msg)
	ctx, span := p.start(ctx, shadow)
	if err != nil {
		span.End(xmetrics.Result{Err: err})
		callback(nil, msg, err)
		return
	}
	target.SendAsync(ctx, out, func(id pulsar.MessageID, m *pulsar.ProducerMessage, err error) {
		span.End(xmetrics.Result{Err: err})
		callback(id, m, err)
	})
}

// Flush 刷新业务生产者与已创建的影子生产者。
func (p *Producer) Flush(ctx context.Context) error {
	errs := []error{p.binding.Business().FlushWithCtx(ctx)}
	if sp, ok := p.binding.Shadow(); ok {
		errs = append(errs, sp.FlushWithCtx(ctx))
	}
	return errors.Join(errs...)
}

// Close 关闭影子生产者与业务生产者，重复调用无效果。
func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.binding.Close()
		p.binding.Business().Close()
	})
	return p.closeErr
}
