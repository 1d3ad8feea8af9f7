package xpulsar

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xshadow/internal/mqcore"
	"github.com/omeyang/xshadow/pkg/observability/xmetrics"
	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
)

// MessageHandler 处理一条消息。ctx 携带本条消息的调用上下文。
type MessageHandler func(ctx context.Context, msg pulsar.Message) error

// ConsumerStats 消费者统计。
type ConsumerStats struct {
	Consumed int64
	// Shadow 其中判定为影子的消息数。
	Shadow int64
	// Dropped 开关关闭时确认并丢弃的影子消息数。
	Dropped int64
	// Errors 消费循环中的错误数。
	Errors int64
}

// Consumer 按消息判定影子流量的 Pulsar 消费者。
//
// 处理成功后 Ack，失败时 Nack。Ack 失败只记录日志，消息已被处理。
type Consumer struct {
	consumer     pulsar.Consumer
	subscription string
	opts         options

	closeOnce sync.Once

	consumed atomic.Int64
	shadow   atomic.Int64
	dropped  atomic.Int64
	errs     atomic.Int64
}

// NewConsumer 订阅并创建消费者。
func NewConsumer(client Client, options pulsar.ConsumerOptions, opts ...Option) (*Consumer, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if options.Topic == "" && len(options.Topics) == 0 && options.TopicsPattern == "" {
		return nil, ErrEmptyTopic
	}
	if options.SubscriptionName == "" {
		return nil, ErrEmptySubscription
	}
	c, err := client.Subscribe(options)
	if err != nil {
		return nil, err
	}
	return newConsumer(c, options.SubscriptionName, opts), nil
}

// WrapConsumer 包装已有的消费者。
func WrapConsumer(c pulsar.Consumer, opts ...Option) (*Consumer, error) {
	if c == nil {
		return nil, ErrNilConsumer
	}
	return newConsumer(c, c.Subscription(), opts), nil
}

func newConsumer(c pulsar.Consumer, subscription string, opts []Option) *Consumer {
	return &Consumer{consumer: c, subscription: subscription, opts: buildOptions(opts)}
}

// Subscription 返回订阅名。
func (c *Consumer) Subscription() string { return c.subscription }

// Consume 接收并处理一条消息。
//
// 影子开关关闭时到达的影子消息不交给 handler，直接 Ack。
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) (err error) {
	if handler == nil {
		return ErrNilHandler
	}
	msg, err := c.consumer.Receive(ctx)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	c.consumed.Add(1)

	var names []string
	if c.subscription != "" {
		names = []string{c.subscription}
	}
	mctx, _, res, err := mqcore.Deliver(ctx, c.opts.classifier, c.opts.propagator, mqcore.Delivery{
		Middleware: "pulsar",
		Headers:    msg.Properties(),
		Topic:      msg.Topic(),
		Names:      names,
		Size:       len(msg.Payload()),
	})
	var disabled *xclassify.ShadowDisabledError
	if errors.As(err, &disabled) {
		c.dropped.Add(1)
		c.opts.logger.WarnContext(ctx, "xpulsar: shadow message dropped",
			slog.String("topic", msg.Topic()),
			slog.String("subscription", c.subscription),
			slog.Any("error", err))
		c.ack(ctx, msg)
		return nil
	}
	if err != nil {
		c.consumer.Nack(msg)
		return err
	}
	defer func() { _ = xinvoke.Exit(mctx) }()
	if res.Shadow {
		c.shadow.Add(1)
	}

	mctx, span := xmetrics.Start(mctx, c.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "consume",
		Kind:      xmetrics.KindConsumer,
		Attrs:     pulsarAttrs(msg.Topic(), res.Shadow),
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	if err := handler(mctx, msg); err != nil {
		c.consumer.Nack(msg)
		return err
	}
	c.ack(mctx, msg)
	return nil
}

func (c *Consumer) ack(ctx context.Context, msg pulsar.Message) {
	if err := c.consumer.Ack(msg); err != nil {
		c.opts.logger.WarnContext(ctx, "xpulsar: ack failed",
			slog.String("subscription", c.subscription), slog.Any("error", err))
	}
}

// ConsumeLoop 循环消费直到 ctx 取消，出错时按退避策略等待，返回 ctx.Err()。
func (c *Consumer) ConsumeLoop(ctx context.Context, handler MessageHandler) error {
	if handler == nil {
		return ErrNilHandler
	}
	return mqcore.RunConsumeLoop(ctx,
		func(ctx context.Context) error { return c.Consume(ctx, handler) },
		mqcore.WithBackoff(c.opts.backoff),
		mqcore.WithOnError(func(err error) {
			if ctx.Err() != nil {
				return
			}
			c.errs.Add(1)
			c.opts.logger.WarnContext(ctx, "xpulsar: consume failed",
				slog.String("subscription", c.subscription), slog.Any("error", err))
		}),
	)
}

// Stats 返回统计信息。
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Consumed: c.consumed.Load(),
		Shadow:   c.shadow.Load(),
		Dropped:  c.dropped.Load(),
		Errors:   c.errs.Load(),
	}
}

// Close 关闭底层消费者，重复调用无效果。
func (c *Consumer) Close() {
	c.closeOnce.Do(c.consumer.Close)
}
