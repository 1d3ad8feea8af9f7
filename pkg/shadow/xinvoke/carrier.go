package xinvoke

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
)

// 跨进程传播使用的头部键。
const (
	HeaderTraceID     = "p-pradar-traceid"
	HeaderInvokeID    = "p-pradar-rpcid"
	HeaderClusterTest = "p-pradar-cluster-test"
	HeaderDebug       = "p-pradar-debug"
)

// Incoming 从载体中读取的原始头部值，尚未经过分类。
type Incoming struct {
	TraceID     string
	InvokeID    string
	ClusterTest string
	Debug       string
}

// Present 报告是否携带了任何传播头。
func (in Incoming) Present() bool {
	return in.TraceID != "" || in.InvokeID != "" || in.ClusterTest != "" || in.Debug != ""
}

// Extract 从载体读取传播头。ctx 中存在 OpenTelemetry span 且载体未携带
// traceID 时，使用 span 的 traceID。
func Extract(ctx context.Context, carrier propagation.TextMapCarrier) Incoming {
	in := Incoming{
		TraceID:     carrier.Get(HeaderTraceID),
		InvokeID:    carrier.Get(HeaderInvokeID),
		ClusterTest: carrier.Get(HeaderClusterTest),
		Debug:       carrier.Get(HeaderDebug),
	}
	in.TraceID = traceIDOrSpan(ctx, in.TraceID)
	return in
}

// Inject 将上下文写入载体。c 为 nil 时不写入。
//
// 调用方通常先 NewChild 创建出站调用的子上下文，再注入子上下文，
// 下游以该编号作为自己的 invokeID。
func Inject(c *InvokeContext, carrier propagation.TextMapCarrier) {
	if c == nil {
		return
	}
	carrier.Set(HeaderTraceID, c.traceID)
	carrier.Set(HeaderInvokeID, c.invokeID)
	// 生产流量不写影子头
	if c.clusterTest {
		carrier.Set(HeaderClusterTest, "1")
	}
	if c.debug {
		carrier.Set(HeaderDebug, "1")
	}
}
