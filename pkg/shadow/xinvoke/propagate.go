package xinvoke

import (
	"context"
	"log/slog"
)

// Snapshot goroutine 切换时捕获的上下文。零值表示未捕获到任何上下文。
type Snapshot struct {
	ic       *InvokeContext
	exporter Exporter
	logger   *slog.Logger
}

// Valid 报告快照是否持有上下文。
func (s Snapshot) Valid() bool { return s.ic != nil }

// Context 返回被捕获的上下文。
func (s Snapshot) Context() *InvokeContext { return s.ic }

// Capture 捕获 ctx 当前的上下文，供新 goroutine 使用。
// ctx 中没有调用栈或栈为空时返回 false。
func Capture(ctx context.Context) (Snapshot, bool) {
	s, ok := StackFrom(ctx)
	if !ok {
		return Snapshot{}, false
	}
	c := s.Current()
	if c == nil {
		return Snapshot{}, false
	}
	return Snapshot{ic: c, exporter: s.exporter, logger: s.logger}, true
}

// Restore 在 parent 上安装一个新调用栈，栈底是快照上下文的分离副本。
//
// 新 goroutine 内创建的子上下文继续被捕获上下文的编号序列，
// 影子标记与调试标记与捕获时一致。快照无效时原样返回 parent。
func Restore(parent context.Context, snap Snapshot) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	if !snap.Valid() {
		return parent
	}
	s := NewStack(WithExporter(snap.exporter), WithLogger(snap.logger))
	// 分离副本不可能已销毁，Push 不会失败
	_ = s.Push(snap.ic.detachedCopy())
	return context.WithValue(parent, keyStack, s)
}

// Go 在新 goroutine 中运行 fn，fn 收到的 context 已恢复调用上下文，
// 并保留 ctx 的取消与截止时间。fn 返回后弹出分离副本。
func Go(ctx context.Context, fn func(ctx context.Context)) {
	snap, ok := Capture(ctx)
	go func() {
		if !ok {
			fn(ctx)
			return
		}
		rctx := Restore(ctx, snap)
		defer func() { _ = Exit(rctx) }()
		fn(rctx)
	}()
}
