package xconsumer

import (
	"context"
	"maps"

	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
)

// Message 与具体 MQ 客户端无关的消息视图。
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
	// Raw 原始消息对象，由适配器放入。
	Raw any
}

// Header 返回消息头，Headers 为 nil 时返回空串。
func (m *Message) Header(key string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// Handler 消息处理函数。
type Handler func(ctx context.Context, msg *Message) error

// AckMode 确认模式。
type AckMode int

// 确认模式取值。
const (
	AckAuto AckMode = iota
	AckManual
)

// Consumer 绑定在连接上的一个消费者。
type Consumer struct {
	Tag       string
	Topic     string
	Group     string
	AckMode   AckMode
	Prefetch  int
	Exclusive bool
	Arguments map[string]any
	Handler   Handler
}

// Target 返回用于 MQ 白名单检查的目标：topic#group 或 topic。
func (c Consumer) Target() string {
	if c.Group == "" {
		return c.Topic
	}
	return c.Topic + "#" + c.Group
}

// Connection 一个物理连接（或通道）。ID 在连接存活期间唯一。
type Connection interface {
	ID() string
	Consumers() []Consumer
}

// Subscription 一个已建立的影子订阅。
type Subscription interface {
	Close() error
}

// Subscriber 以给定参数在连接上建立订阅，由各 MQ 适配器实现。
type Subscriber interface {
	Subscribe(ctx context.Context, conn Connection, c Consumer) (Subscription, error)
}

// SubscriberFunc 函数适配器。
type SubscriberFunc func(ctx context.Context, conn Connection, c Consumer) (Subscription, error)

// Subscribe 实现 Subscriber。
func (f SubscriberFunc) Subscribe(ctx context.Context, conn Connection, c Consumer) (Subscription, error) {
	return f(ctx, conn, c)
}

// isShadowConsumer 报告 c 是否本身就是影子消费者。
func isShadowConsumer(n xclassify.Naming, c Consumer) bool {
	return n.IsShadow(c.Topic) || (c.Tag != "" && n.IsShadow(c.Tag))
}

// shadowOf 返回 c 对应的影子消费者，处理函数被包装为总在影子上下文中执行。
func shadowOf(n xclassify.Naming, c Consumer) Consumer {
	sc := c
	sc.Topic = n.Shadow(c.Topic)
	if c.Group != "" {
		sc.Group = n.Shadow(c.Group)
	}
	if c.Tag != "" {
		sc.Tag = n.Shadow(c.Tag)
	}
	sc.Arguments = maps.Clone(c.Arguments)
	if c.Handler != nil {
		sc.Handler = ShadowHandler(c.Handler)
	}
	return sc
}

// ShadowHandler 包装 h，使其总在影子调用上下文中执行。
//
// ctx 中已有上下文时创建影子边界子上下文，否则以消息头中的追踪标识创建影子根上下文。
func ShadowHandler(h Handler) Handler {
	return func(ctx context.Context, msg *Message) error {
		var ic *xinvoke.InvokeContext
		if parent := xinvoke.Current(ctx); parent != nil {
			ic = parent.NewBoundaryChild(xinvoke.InvokeMQ, true)
		} else {
			ic = xinvoke.FromUpstream(xinvoke.Upstream{
				TraceID:     msg.Header(xinvoke.HeaderTraceID),
				InvokeID:    msg.Header(xinvoke.HeaderInvokeID),
				ClusterTest: true,
				Debug:       xclassify.IsShadowHeader(msg.Header(xinvoke.HeaderDebug)),
			}, xinvoke.InvokeMQ)
		}
		_ = ic.Update(func(s *xinvoke.Scratch) {
			if msg != nil {
				s.ServiceName = msg.Topic
				s.RequestSize = int64(len(msg.Value))
			}
		})
		ctx, err := xinvoke.EnterWith(ctx, ic)
		if err != nil {
			return err
		}
		defer func() { _ = xinvoke.Exit(ctx) }()
		return h(ctx, msg)
	}
}
