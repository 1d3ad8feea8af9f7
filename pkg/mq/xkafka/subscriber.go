package xkafka

import (
	"context"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/omeyang/xshadow/pkg/shadow/xconsumer"
)

// =============================================================================
// Connection
// =============================================================================

// Connection 一组共享 broker 配置的业务消费者，实现 xconsumer.Connection。
type Connection struct {
	id        string
	consumers []xconsumer.Consumer
}

var _ xconsumer.Connection = (*Connection)(nil)

// NewConnection 创建连接视图。id 在应用内唯一，通常是客户端 ID。
func NewConnection(id string, consumers ...xconsumer.Consumer) *Connection {
	return &Connection{id: id, consumers: consumers}
}

// ID 实现 xconsumer.Connection。
func (c *Connection) ID() string { return c.id }

// Consumers 实现 xconsumer.Connection。
func (c *Connection) Consumers() []xconsumer.Consumer { return c.consumers }

// =============================================================================
// Subscriber
// =============================================================================

type consumerFactory func(config *kafka.ConfigMap, topics []string) (consumerAPI, string, error)

// Subscriber 为影子消费者建立独立的 Kafka 消费者，实现 xconsumer.Subscriber。
//
// 每个订阅以 base 配置为基础、以影子消费组为 group.id，在后台 goroutine 中
// 消费影子主题，消息转换为 xconsumer.Message 交给消费者的处理函数。
type Subscriber struct {
	base    *kafka.ConfigMap
	opts    []Option
	factory consumerFactory
}

var _ xconsumer.Subscriber = (*Subscriber)(nil)

// NewSubscriber 创建订阅器。base 至少包含 bootstrap.servers。
func NewSubscriber(base *kafka.ConfigMap, opts ...Option) (*Subscriber, error) {
	if base == nil {
		return nil, ErrNilConfig
	}
	cloned, err := cloneConfig(base)
	if err != nil {
		return nil, err
	}
	return &Subscriber{base: cloned, opts: opts, factory: openConsumer}, nil
}

// Subscribe 实现 xconsumer.Subscriber。订阅的生命期与 ctx 无关，由 Close 结束。
func (s *Subscriber) Subscribe(ctx context.Context, _ xconsumer.Connection, c xconsumer.Consumer) (xconsumer.Subscription, error) {
	switch {
	case c.Topic == "":
		return nil, ErrEmptyTopics
	case c.Group == "":
		return nil, ErrEmptyGroup
	case c.Handler == nil:
		return nil, ErrNilHandler
	}

	config, err := cloneConfig(s.base)
	if err != nil {
		return nil, err
	}
	if err := config.SetKey("group.id", c.Group); err != nil {
		return nil, err
	}
	if c.Tag != "" {
		if err := config.SetKey("client.id", c.Tag); err != nil {
			return nil, err
		}
	}
	api, group, err := s.factory(config, []string{c.Topic})
	if err != nil {
		return nil, err
	}

	consumer := newConsumer(api, group, s.opts)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{consumer: consumer, cancel: cancel}
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		_ = consumer.ConsumeLoop(runCtx, adapt(c.Handler))
	}()
	return sub, nil
}

// adapt 把 xconsumer.Handler 转为 MessageHandler，原始消息放在 Raw。
func adapt(h xconsumer.Handler) MessageHandler {
	return func(ctx context.Context, msg *kafka.Message) error {
		return h(ctx, &xconsumer.Message{
			Topic:   topicOf(msg),
			Key:     string(msg.Key),
			Value:   msg.Value,
			Headers: headersToMap(msg.Headers),
			Raw:     msg,
		})
	}
}

type subscription struct {
	consumer *Consumer
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
	err      error
}

// Close 停止消费循环并关闭消费者。
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.err = s.consumer.Close()
	})
	return s.err
}
