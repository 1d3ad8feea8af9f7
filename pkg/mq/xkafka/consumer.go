package xkafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/omeyang/xshadow/internal/mqcore"
	"github.com/omeyang/xshadow/pkg/observability/xmetrics"
	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
)

// consumerAPI Consumer 用到的 *kafka.Consumer 方法。
type consumerAPI interface {
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	StoreMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Close() error
}

var _ consumerAPI = (*kafka.Consumer)(nil)

// MessageHandler 处理一条消息。ctx 携带本条消息的调用上下文。
type MessageHandler func(ctx context.Context, msg *kafka.Message) error

// ConsumerStats 消费者统计。
type ConsumerStats struct {
	Consumed int64
	// Shadow 其中判定为影子的消息数。
	Shadow int64
	// Dropped 开关关闭时丢弃的影子消息数。
	Dropped int64
	// Errors 消费循环中的错误数。
	Errors int64
}

// Consumer 按消息判定影子流量的 Kafka 消费者。
//
// 偏移量只在处理成功后存储。Close 等待进行中的处理与偏移量存储完成。
type Consumer struct {
	api   consumerAPI
	group string
	opts  options

	closeMu sync.RWMutex
	closed  bool

	consumed atomic.Int64
	shadow   atomic.Int64
	dropped  atomic.Int64
	errs     atomic.Int64
}

// NewConsumer 创建消费者并订阅 topics。config 必须包含 bootstrap.servers 与 group.id，
// 不会被修改；enable.auto.offset.store 被强制设为 false。
func NewConsumer(config *kafka.ConfigMap, topics []string, opts ...Option) (*Consumer, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if len(topics) == 0 {
		return nil, ErrEmptyTopics
	}
	api, group, err := openConsumer(config, topics)
	if err != nil {
		return nil, err
	}
	return newConsumer(api, group, opts), nil
}

func openConsumer(config *kafka.ConfigMap, topics []string) (consumerAPI, string, error) {
	cloned, err := cloneConfig(config)
	if err != nil {
		return nil, "", err
	}
	if err := cloned.SetKey("enable.auto.offset.store", false); err != nil {
		return nil, "", fmt.Errorf("xkafka: set enable.auto.offset.store: %w", err)
	}
	var group string
	if v, err := cloned.Get("group.id", ""); err == nil {
		group, _ = v.(string)
	}

	c, err := kafka.NewConsumer(cloned)
	if err != nil {
		return nil, "", err
	}
	if err := c.SubscribeTopics(topics, nil); err != nil {
		return nil, "", errors.Join(err, c.Close())
	}
	return c, group, nil
}

func newConsumer(api consumerAPI, group string, opts []Option) *Consumer {
	return &Consumer{api: api, group: group, opts: buildOptions(opts)}
}

// Group 返回消费组。
func (c *Consumer) Group() string { return c.group }

// read 轮询到一条消息或 ctx 取消，跳过轮询超时。
func (c *Consumer) read(ctx context.Context) (*kafka.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := c.api.ReadMessage(c.opts.pollTimeout)
		if err == nil {
			return msg, nil
		}
		var kerr kafka.Error
		if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
			continue
		}
		return nil, err
	}
}

// Consume 读取并处理一条消息。
//
// 影子开关关闭时到达的影子消息不交给 handler，偏移量照常存储。
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	if handler == nil {
		return ErrNilHandler
	}
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	msg, err := c.read(ctx)
	if err != nil {
		return err
	}
	c.consumed.Add(1)
	return c.handle(ctx, msg, handler)
}

func (c *Consumer) handle(ctx context.Context, msg *kafka.Message, handler MessageHandler) (err error) {
	topic := topicOf(msg)
	var names []string
	if c.group != "" {
		names = []string{c.group}
	}
	mctx, _, res, err := mqcore.Deliver(ctx, c.opts.classifier, c.opts.propagator, mqcore.Delivery{
		Middleware: "kafka",
		Headers:    headersToMap(msg.Headers),
		Topic:      topic,
		Names:      names,
		Size:       len(msg.Value),
	})
	var disabled *xclassify.ShadowDisabledError
	if errors.As(err, &disabled) {
		c.dropped.Add(1)
		c.opts.logger.WarnContext(ctx, "xkafka: shadow message dropped",
			slog.String("topic", topic),
			slog.String("group", c.group),
			slog.Any("error", err))
		return c.store(msg)
	}
	if err != nil {
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
		Attrs:     kafkaAttrs(topic, res.Shadow),
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	if err := handler(mctx, msg); err != nil {
		return err
	}
	return c.store(msg)
}

func (c *Consumer) store(msg *kafka.Message) error {
	if _, err := c.api.StoreMessage(msg); err != nil {
		return fmt.Errorf("xkafka: store offset: %w", err)
	}
	return nil
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
			c.opts.logger.WarnContext(ctx, "xkafka: consume failed",
				slog.String("group", c.group), slog.Any("error", err))
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

// Close 关闭消费者，重复调用无效果。
func (c *Consumer) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.api.Close()
}
