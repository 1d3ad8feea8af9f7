package xintercept

import "context"

// Advice 一次被拦截的调用。
//
// Advice 只在一次 Invoke 内有效，不得跨 goroutine 保存。
type Advice struct {
	Target any
	Method string
	Args   []any

	// Return 与 Err 在原调用返回后（或短路后）可用。
	Return any
	Err    error

	ctx          context.Context
	argsReplaced bool
	shortCircuit bool
	local        map[any]any
}

// Context 返回本次调用的 context。
func (a *Advice) Context() context.Context { return a.ctx }

// SetContext 替换本次调用的 context，原调用与后续钩子使用新值。
func (a *Advice) SetContext(ctx context.Context) {
	if ctx != nil {
		a.ctx = ctx
	}
}

// ReplaceArgs 替换原调用的参数。
func (a *Advice) ReplaceArgs(args ...any) {
	a.Args = args
	a.argsReplaced = true
}

// ArgsReplaced 报告参数是否被替换。
func (a *Advice) ArgsReplaced() bool { return a.argsReplaced }

// ShortCircuit 以 v 作为返回值跳过原调用与其余 Before 钩子。
func (a *Advice) ShortCircuit(v any) {
	a.Return = v
	a.Err = nil
	a.shortCircuit = true
}

// ShortCircuited 报告本次调用是否被短路。
func (a *Advice) ShortCircuited() bool { return a.shortCircuit }

func (a *Advice) setLocal(k, v any) {
	if a.local == nil {
		a.local = make(map[any]any)
	}
	a.local[k] = v
}

func (a *Advice) getLocal(k any) (any, bool) {
	v, ok := a.local[k]
	return v, ok
}

func (a *Advice) deleteLocal(k any) { delete(a.local, k) }
