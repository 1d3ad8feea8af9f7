package xinvoke

import (
	"context"
	"log/slog"
	"time"
)

// =============================================================================
// Stack
// =============================================================================

// Stack 一个工作单元独占的调用栈。
//
// Stack 不是并发安全的：只能由创建它的工作单元读写，
// 跨 goroutine 传递请使用 Capture/Restore。
type Stack struct {
	frames   []*InvokeContext
	exporter Exporter
	logger   *slog.Logger
	now      func() time.Time
}

// StackOption 调用栈配置选项。
type StackOption func(*Stack)

// WithExporter 设置弹栈时的导出端。
func WithExporter(e Exporter) StackOption {
	return func(s *Stack) {
		if e != nil {
			s.exporter = e
		}
	}
}

// WithLogger 设置日志器，用于记录断言失败。
func WithLogger(l *slog.Logger) StackOption {
	return func(s *Stack) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStack 创建空调用栈。
func NewStack(opts ...StackOption) *Stack {
	s := &Stack{
		exporter: NoopExporter{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push 压入上下文。c 为 nil 返回 ErrNilContext，已销毁返回 ErrContextDestroyed。
func (s *Stack) Push(c *InvokeContext) error {
	if c == nil {
		return ErrNilContext
	}
	if c.Destroyed() {
		s.logger.Error("xinvoke: push destroyed context",
			slog.String("trace_id", c.traceID),
			slog.String("invoke_id", c.invokeID))
		return ErrContextDestroyed
	}
	s.frames = append(s.frames, c)
	return nil
}

// Pop 弹出栈顶上下文，导出调用记录并销毁它。
//
// 分离副本（Restore 产生的栈底）只销毁不导出，原上下文由其所在工作单元导出。
// 空栈返回 ErrStackEmpty，栈保持不变。
func (s *Stack) Pop() (*InvokeContext, error) {
	n := len(s.frames)
	if n == 0 {
		s.logger.Error("xinvoke: pop on empty stack")
		return nil, ErrStackEmpty
	}
	c := s.frames[n-1]
	s.frames[n-1] = nil
	s.frames = s.frames[:n-1]

	if c.Destroyed() {
		s.logger.Error("xinvoke: pop destroyed context",
			slog.String("trace_id", c.traceID),
			slog.String("invoke_id", c.invokeID))
		return c, ErrContextDestroyed
	}
	if !c.detached {
		s.exporter.Export(newTrace(c, s.now()))
	}
	c.destroy()
	return c, nil
}

// Current 返回栈顶上下文，空栈返回 nil。
func (s *Stack) Current() *InvokeContext {
	if n := len(s.frames); n > 0 {
		return s.frames[n-1]
	}
	return nil
}

// Depth 返回栈深度。
func (s *Stack) Depth() int { return len(s.frames) }

// =============================================================================
// context.Context 集成
// =============================================================================

type contextKey string

const keyStack = contextKey("xinvoke:stack")

// WithStack 将调用栈放入 context。
func WithStack(ctx context.Context, s *Stack) (context.Context, error) {
	if ctx == nil || s == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keyStack, s), nil
}

// StackFrom 从 context 取出调用栈。
func StackFrom(ctx context.Context) (*Stack, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(keyStack).(*Stack)
	return s, ok && s != nil
}

// Current 返回 context 中调用栈的栈顶上下文，不存在时返回 nil。
func Current(ctx context.Context) *InvokeContext {
	if s, ok := StackFrom(ctx); ok {
		return s.Current()
	}
	return nil
}

// IsClusterTest 报告 ctx 当前是否处于影子流量中。
func IsClusterTest(ctx context.Context) bool {
	c := Current(ctx)
	return c != nil && c.IsClusterTest()
}

// IsDebug 报告 ctx 当前是否处于调试流量中。
func IsDebug(ctx context.Context) bool {
	c := Current(ctx)
	return c != nil && c.IsDebug()
}

// TraceID 返回 ctx 当前的 traceID，不存在时返回 OpenTelemetry span 的 traceID 或空串。
func TraceID(ctx context.Context) string {
	if c := Current(ctx); c != nil {
		return c.TraceID()
	}
	return traceIDOrSpan(ctx, "")
}

// ensureStack 返回 ctx 中的调用栈，不存在时创建并放入 context。
func ensureStack(ctx context.Context, opts []StackOption) (context.Context, *Stack) {
	if s, ok := StackFrom(ctx); ok {
		return ctx, s
	}
	s := NewStack(opts...)
	return context.WithValue(ctx, keyStack, s), s
}

// Enter 进入一次调用：在当前上下文下创建子上下文并压栈；
// 当前没有上下文时创建根上下文（traceID 优先取 OpenTelemetry span）。
// opts 仅在 ctx 中还没有调用栈时生效。
func Enter(ctx context.Context, typ InvokeType, opts ...StackOption) (context.Context, *InvokeContext, error) {
	if ctx == nil {
		return nil, nil, ErrNilContext
	}
	ctx, s := ensureStack(ctx, opts)
	var c *InvokeContext
	if cur := s.Current(); cur != nil {
		c = cur.NewChild(typ)
	} else {
		c = NewRoot(WithTraceID(traceIDOrSpan(ctx, "")), WithType(typ))
	}
	if err := s.Push(c); err != nil {
		return ctx, nil, err
	}
	return ctx, c, nil
}

// EnterWith 压入调用方已构造好的上下文（如入站边界的 FromUpstream 结果）。
func EnterWith(ctx context.Context, c *InvokeContext, opts ...StackOption) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	ctx, s := ensureStack(ctx, opts)
	if err := s.Push(c); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// Exit 弹出 ctx 中调用栈的栈顶。
func Exit(ctx context.Context) error {
	s, ok := StackFrom(ctx)
	if !ok {
		return ErrNoStack
	}
	_, err := s.Pop()
	return err
}
