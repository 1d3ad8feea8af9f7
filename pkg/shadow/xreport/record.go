package xreport

import (
	"log/slog"
	"time"
)

// Type 错误记录类型，对应外部上报端的错误大类。
type Type string

// 错误类型。
const (
	TypeAgent      Type = "AgentError"
	TypeDataSource Type = "DataSource"
	TypeMQ         Type = "MQ"
	TypeCache      Type = "Cache"
	TypeDebug      Type = "Debug"
)

// 错误码，沿用管理端约定的编号。
const (
	// CodeShadowDisabled 影子模式关闭时收到影子流量。
	CodeShadowDisabled = "agent-0008"
	// CodeWhitelistDenied 目标不在白名单中。
	CodeWhitelistDenied = "whiteList-0001"
	// CodeDataSourceUnavailable 影子数据源获取失败。
	CodeDataSourceUnavailable = "datasource-0001"
	// CodeConsumerRegistration 影子消费者订阅失败。
	CodeConsumerRegistration = "MQ-0001"
	// CodeCacheUnavailable 影子缓存获取失败。
	CodeCacheUnavailable = "cache-0001"
)

// Record 结构化错误记录。
type Record struct {
	Type    Type
	Code    string
	Message string
	Detail  string

	// TraceID 触发记录的调用链 ID，可能为空（后台任务）。
	TraceID string

	// Time 记录生成时间，为零值时由上报端补全。
	Time time.Time
}

// normalize 补全缺省字段。
func (r Record) normalize() Record {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	if r.Type == "" {
		r.Type = TypeAgent
	}
	return r
}

// LogAttrs 返回记录的 slog 属性，用于日志输出。
func (r Record) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("type", string(r.Type)),
		slog.String("code", r.Code),
		slog.String("detail", r.Detail),
	}
	if r.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", r.TraceID))
	}
	return attrs
}
