package xmetrics

import (
	"context"
	"strconv"

	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
)

// Kind 跨度类型，对应影子判定发生的位置。
type Kind int

const (
	// KindInternal 组件内部步骤，如影子后端派生、白名单拒绝、影子消费者注册。
	KindInternal Kind = iota
	// KindServer 入站边界判定（HTTP 中间件、gRPC 服务端拦截器）。
	KindServer
	// KindClient 出站调用的传播与白名单检查。
	KindClient
	// KindProducer 影子感知的消息发送。
	KindProducer
	// KindConsumer 消息投递时的流量判定。
	KindConsumer
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindServer:
		return "Server"
	case KindClient:
		return "Client"
	case KindProducer:
		return "Producer"
	case KindConsumer:
		return "Consumer"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Status 观测结果状态，作为指标的 status 维度。
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
	// StatusDenied 影子流量被开关或白名单拒绝，与派生失败等错误分开统计。
	StatusDenied Status = "denied"
)

// Traffic 流量类型，作为指标与跨度的 traffic 维度。
type Traffic string

const (
	TrafficProduction Traffic = "production"
	TrafficShadow     Traffic = "shadow"
)

// TrafficOf 按 ctx 中的调用上下文返回流量类型，没有调用上下文时视为生产流量。
func TrafficOf(ctx context.Context) Traffic {
	if xinvoke.IsClusterTest(ctx) {
		return TrafficShadow
	}
	return TrafficProduction
}

// Attr 观测属性。
type Attr struct {
	Key   string
	Value any
}

// SpanOptions 跨度创建参数。
type SpanOptions struct {
	Component string
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result 跨度结束时的结果。Status 为空时由 Err 推导：有错误为 StatusError。
type Result struct {
	Status Status
	Err    error
	Attrs  []Attr
}

// Span 一次观测跨度。
type Span interface {
	End(result Result)
}

// Observer 观测接口。
type Observer interface {
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver 空实现。
type NoopObserver struct{}

// Start 返回 ctx 与空跨度，nil ctx 替换为 context.Background()。
func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

// NoopSpan 空跨度。
type NoopSpan struct{}

// End 空操作。
func (NoopSpan) End(Result) {}

// Start 使用 observer 开始观测，保证返回非 nil 的 ctx 与 Span。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	retCtx, span := observer.Start(ctx, opts)
	if retCtx == nil {
		retCtx = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return retCtx, span
}
