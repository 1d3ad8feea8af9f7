// Package xlog 基于 log/slog 构建影子组件使用的日志器。
//
// Builder 负责输出目标、格式、动态级别与文件轮转（lumberjack）。
// 默认启用 EnrichHandler：每条日志自动带上当前调用上下文的
// trace_id、invoke_id 与 cluster_test，影子流量的日志可以直接按 cluster_test 过滤。
//
//	logger, level, cleanup, err := xlog.New().
//		SetFormat("json").
//		SetLevelString("info").
//		SetRotation("/var/log/app/shadow.log", xlog.RotateOptions{MaxSizeMB: 100}).
//		Build()
//	defer cleanup()
//	level.Set(slog.LevelDebug) // 运行时调整
//
// 全局 Logger 仅供小工具使用，服务端通过选项显式注入。
// SetDefault 同时替换 slog 的默认 Logger，未注入日志器的组件随之生效。
package xlog
