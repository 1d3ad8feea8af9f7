// Package observability 汇集影子组件的可观测性子包。
//
//   - xlog: 基于 log/slog 的日志器，自动注入调用上下文属性
//   - xmetrics: Observer/Span 观测接口与 OpenTelemetry 实现
package observability
