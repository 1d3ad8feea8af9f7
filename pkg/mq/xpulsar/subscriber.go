package xpulsar

import (
	"context"
	"sync"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xshadow/pkg/shadow/xconsumer"
)

// Connection 一个 Pulsar 客户端上的业务消费者，实现 xconsumer.Connection。
type Connection struct {
	id        string
	consumers []xconsumer.Consumer
}

var _ xconsumer.Connection = (*Connection)(nil)

// NewConnection 创建连接视图，id 通常是服务地址加应用名。
func NewConnection(id string, consumers ...xconsumer.Consumer) *Connection {
	return &Connection{id: id, consumers: consumers}
}

// ID 实现 xconsumer.Connection。
func (c *Connection) ID() string { return c.id }

// Consumers 实现 xconsumer.Connection。
func (c *Connection) Consumers() []xconsumer.Consumer { return c.consumers }

// Subscriber 在同一客户端上建立影子订阅，实现 xconsumer.Subscriber。
//
// 影子消费组作为订阅名，Tag 作为消费者名称。
type Subscriber struct {
	client Client
	opts   []Option
}

var _ xconsumer.Subscriber = (*Subscriber)(nil)

// NewSubscriber 创建订阅器。
func NewSubscriber(client Client, opts ...Option) (*Subscriber, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &Subscriber{client: client, opts: opts}, nil
}

// Subscribe 实现 xconsumer.Subscriber。订阅的生命期与 ctx 无关，由 Close 结束。
func (s *Subscriber) Subscribe(ctx context.Context, _ xconsumer.Connection, c xconsumer.Consumer) (xconsumer.Subscription, error) {
	switch {
	case c.Topic == "":
		return nil, ErrEmptyTopic
	case c.Group == "":
		return nil, ErrEmptySubscription
	case c.Handler == nil:
		return nil, ErrNilHandler
	}
	o := buildOptions(s.opts)
	pc, err := s.client.Subscribe(pulsar.ConsumerOptions{
		Topic:            c.Topic,
		SubscriptionName: c.Group,
		Name:             c.Tag,
		Type:             o.subType,
		Properties:       stringArgs(c.Arguments),
	})
	if err != nil {
		return nil, err
	}

	consumer := newConsumer(pc, c.Group, s.opts)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{consumer: consumer, cancel: cancel}
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		_ = consumer.ConsumeLoop(runCtx, adapt(c.Handler))
	}()
	return sub, nil
}

// stringArgs 取出字符串类型的消费者参数作为订阅属性。
func stringArgs(args map[string]any) map[string]string {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]string, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func adapt(h xconsumer.Handler) MessageHandler {
	return func(ctx context.Context, msg pulsar.Message) error {
		return h(ctx, &xconsumer.Message{
			Topic:   msg.Topic(),
			Key:     msg.Key(),
			Value:   msg.Payload(),
			Headers: msg.Properties(),
			Raw:     msg,
		})
	}
}

type subscription struct {
	consumer *Consumer
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
}

// Close 停止消费循环并关闭消费者。
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.consumer.Close()
	})
	return nil
}
