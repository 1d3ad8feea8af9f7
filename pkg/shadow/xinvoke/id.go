package xinvoke

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// NewTraceID 生成 32 位十六进制 traceID（UUIDv7，按时间有序）。
func NewTraceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return hex.EncodeToString(id[:])
}

// traceIDOrSpan 返回 id；id 为空时使用 ctx 中 OpenTelemetry span 的 traceID。
// 两者都没有时返回空字符串，由 NewRoot 生成新 ID。
func traceIDOrSpan(ctx context.Context, id string) string {
	if id != "" || ctx == nil {
		return id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
