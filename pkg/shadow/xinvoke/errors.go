package xinvoke

import (
	"errors"

	"github.com/omeyang/xshadow/pkg/shadow/xreport"
)

// =============================================================================
// 错误定义
// =============================================================================

var (
	// ErrNilContext 传入的 context 或 InvokeContext 为 nil。
	ErrNilContext = errors.New("xinvoke: nil context")

	// ErrStackEmpty 没有对应 Push 的 Pop。
	ErrStackEmpty = xreport.Classed(xreport.ErrReentrancy, "xinvoke: pop on empty stack")

	// ErrContextDestroyed 上下文已在栈底弹出后被销毁，不能再使用。
	ErrContextDestroyed = xreport.Classed(xreport.ErrReentrancy, "xinvoke: invoke context destroyed")

	// ErrNoStack context 中没有调用栈。
	ErrNoStack = xreport.Classed(xreport.ErrReentrancy, "xinvoke: no invoke stack in context")
)
