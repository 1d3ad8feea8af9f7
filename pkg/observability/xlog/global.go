package xlog

import (
	"log/slog"
	"sync/atomic"
)

// =============================================================================
// 全局 Logger
// =============================================================================

var global atomic.Pointer[slog.Logger]

// Default 返回全局 Logger，首次调用时以默认配置构建。
func Default() *slog.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	l, _, _, err := New().Build()
	if err != nil {
		l = slog.Default()
	}
	if global.CompareAndSwap(nil, l) {
		return l
	}
	return global.Load()
}

// SetDefault 替换全局 Logger 并同步为 slog 默认 Logger。nil 被忽略。
func SetDefault(l *slog.Logger) {
	if l == nil {
		return
	}
	global.Store(l)
	slog.SetDefault(l)
}

// ResetDefault 清空全局 Logger（测试用）。
func ResetDefault() { global.Store(nil) }
