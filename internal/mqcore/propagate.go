package mqcore

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
)

// Propagator 在消息头与调用上下文之间传播影子标识。
//
// 影子传播头总是读写；配置了 OpenTelemetry 传播器时，同时读写 W3C 追踪头，
// 消息未携带 traceID 时以 traceparent 中的 traceID 兜底。
type Propagator struct {
	otel propagation.TextMapPropagator
}

// NewPropagator 创建传播器，otel 为 nil 时只传播影子头。
func NewPropagator(otel propagation.TextMapPropagator) Propagator {
	return Propagator{otel: otel}
}

// DefaultPropagator 同时传播影子头与 TraceContext、Baggage。
func DefaultPropagator() Propagator {
	return NewPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Inject 为出站消息创建 ctx 当前上下文的 MQ 子上下文并写入 headers，返回子上下文。
// ctx 中没有调用上下文时不写影子头，返回 nil。
func (p Propagator) Inject(ctx context.Context, headers map[string]string) *xinvoke.InvokeContext {
	if headers == nil {
		return nil
	}
	carrier := propagation.MapCarrier(headers)
	if p.otel != nil && trace.SpanContextFromContext(ctx).IsValid() {
		p.otel.Inject(ctx, carrier)
	}
	cur := xinvoke.Current(ctx)
	if cur == nil {
		return nil
	}
	child := cur.NewChild(xinvoke.InvokeMQ)
	xinvoke.Inject(child, carrier)
	return child
}

// Extract 读取 headers 中的传播头。配置了 OpenTelemetry 传播器时，
// 返回的 ctx 携带远端 span 上下文。
func (p Propagator) Extract(ctx context.Context, headers map[string]string) (context.Context, xinvoke.Incoming) {
	carrier := propagation.MapCarrier(headers)
	if headers == nil {
		carrier = propagation.MapCarrier{}
	}
	if p.otel != nil {
		ctx = p.otel.Extract(ctx, carrier)
	}
	return ctx, xinvoke.Extract(ctx, carrier)
}
