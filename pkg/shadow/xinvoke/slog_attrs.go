package xinvoke

import (
	"context"
	"log/slog"
)

// 日志属性键。
const (
	KeyTraceID     = "trace_id"
	KeyInvokeID    = "invoke_id"
	KeyClusterTest = "cluster_test"
)

// AppendAttrs 将 ctx 当前上下文的追踪属性追加到 attrs。
// 没有上下文时原样返回。
func AppendAttrs(ctx context.Context, attrs []slog.Attr) []slog.Attr {
	c := Current(ctx)
	if c == nil {
		return attrs
	}
	return append(attrs,
		slog.String(KeyTraceID, c.traceID),
		slog.String(KeyInvokeID, c.invokeID),
		slog.Bool(KeyClusterTest, c.clusterTest),
	)
}
