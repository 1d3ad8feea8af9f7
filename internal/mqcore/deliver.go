package mqcore

import (
	"context"

	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// Delivery 一条入站消息上与判定有关的部分。
type Delivery struct {
	// Middleware 中间件名称，如 "kafka"。
	Middleware string
	Headers    map[string]string
	// Topic 消息所在主题。
	Topic string
	// Names 除主题外参与名称推断的名称，如消费组、订阅名。
	Names []string
	Size  int
}

// Deliver 判定一条入站消息并在 ctx 上压入 MQ 上下文。
//
// 出错时不压栈，*xclassify.ShadowDisabledError 表示影子消息到达而总开关关闭。
// 成功时调用方负责 xinvoke.Exit。
func Deliver(ctx context.Context, c *xclassify.Classifier, p Propagator, d Delivery) (context.Context, *xinvoke.InvokeContext, xclassify.Result, error) {
	ctx, in := p.Extract(ctx, d.Headers)
	names := make([]string, 0, len(d.Names)+1)
	if d.Topic != "" {
		names = append(names, d.Topic)
	}
	names = append(names, d.Names...)

	ctx, ic, res, err := c.ClassifyContext(ctx, xclassify.MarkersFrom(in, names...), xinvoke.InvokeMQ)
	if err != nil {
		return ctx, nil, res, err
	}
	_ = ic.Update(func(s *xinvoke.Scratch) {
		s.MiddlewareName = d.Middleware
		s.ServiceName = d.Topic
		s.RequestSize = int64(d.Size)
	})
	return ctx, ic, res, nil
}

// Enforcer 出站主题的白名单检查，*xwhitelist.Gate 实现了此接口。
type Enforcer interface {
	Enforce(ctx context.Context, target string, kind xwhitelist.Kind) error
}

var _ Enforcer = (*xwhitelist.Gate)(nil)

// Route 返回出站消息应发往的主题。
//
// 影子上下文中把业务主题改写为影子主题，gate 非 nil 时先以业务主题做 MQ 白名单检查。
// 生产流量原样返回。
func Route(ctx context.Context, naming xclassify.Naming, gate Enforcer, topic string) (string, bool, error) {
	if !xinvoke.IsClusterTest(ctx) {
		return topic, false, nil
	}
	business := naming.Business(topic)
	if gate != nil {
		if err := gate.Enforce(ctx, business, xwhitelist.KindMQTopic); err != nil {
			return topic, true, err
		}
	}
	return naming.Shadow(business), true, nil
}
