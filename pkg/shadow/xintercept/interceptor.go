package xintercept

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/shadow/xscope"
)

// Interceptor 拦截器钩子。
//
// AfterReturn 与 AfterException 的错误只记录日志，不改变调用结果。
type Interceptor interface {
	Before(a *Advice) error
	AfterReturn(a *Advice) error
	AfterException(a *Advice) error
}

// Hooks 以函数实现 Interceptor，未设置的钩子为空操作。
type Hooks struct {
	BeforeFunc         func(a *Advice) error
	AfterReturnFunc    func(a *Advice) error
	AfterExceptionFunc func(a *Advice) error
}

func (h Hooks) Before(a *Advice) error {
	if h.BeforeFunc == nil {
		return nil
	}
	return h.BeforeFunc(a)
}

func (h Hooks) AfterReturn(a *Advice) error {
	if h.AfterReturnFunc == nil {
		return nil
	}
	return h.AfterReturnFunc(a)
}

func (h Hooks) AfterException(a *Advice) error {
	if h.AfterExceptionFunc == nil {
		return nil
	}
	return h.AfterExceptionFunc(a)
}

// =============================================================================
// Pipeline
// =============================================================================

// Call 原调用。
type Call func(ctx context.Context, args []any) (any, error)

// Pipeline 有序的拦截器链，构建后只读，可并发使用。
type Pipeline struct {
	interceptors []Interceptor
	logger       *slog.Logger
}

// New 创建拦截器链，Before 按顺序执行，after 钩子逆序执行。
func New(interceptors ...Interceptor) *Pipeline {
	return &Pipeline{interceptors: interceptors, logger: xlog.Default()}
}

// WithLogger 返回使用 l 记录 after 钩子错误的副本。
func (p *Pipeline) WithLogger(l *slog.Logger) *Pipeline {
	cp := *p
	if l != nil {
		cp.logger = l
	}
	return &cp
}

// Invoke 经过拦截器链执行 call。
//
// 某个 Before 返回错误时，已执行 Before 的拦截器收到 AfterException，
// 原调用不执行，错误原样返回。Before 或 call panic 时同样先执行
// AfterException（Advice.Err 为 *PanicError），再继续 panic。
func (p *Pipeline) Invoke(ctx context.Context, target any, method string, args []any, call Call) (any, error) {
	a := &Advice{Target: target, Method: method, Args: args, ctx: ctx}

	ran := 0
	finished := false
	defer func() {
		if finished {
			return
		}
		v := recover()
		a.Err = &PanicError{Method: method, Value: v}
		p.after(a, ran, true)
		if v != nil {
			panic(v)
		}
	}()

	for _, in := range p.interceptors {
		if err := in.Before(a); err != nil {
			a.Err = err
			finished = true
			p.after(a, ran, true)
			return nil, err
		}
		ran++
		if a.shortCircuit {
			break
		}
	}

	if !a.shortCircuit {
		a.Return, a.Err = call(a.ctx, a.Args)
	}
	finished = true
	p.after(a, ran, a.Err != nil)
	return a.Return, a.Err
}

// PanicError 拦截链中发生 panic 时交给 AfterException 的错误。
type PanicError struct {
	Method string
	Value  any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("xintercept: panic in %s: %v", e.Method, e.Value)
}

func (p *Pipeline) after(a *Advice, ran int, failed bool) {
	for i := ran - 1; i >= 0; i-- {
		in := p.interceptors[i]
		var err error
		if failed {
			err = in.AfterException(a)
		} else {
			err = in.AfterReturn(a)
		}
		if err != nil {
			p.logger.WarnContext(a.Context(), "xintercept: after hook failed",
				slog.String("method", a.Method),
				slog.Bool("exception", failed),
				slog.Any("error", err))
		}
	}
}

// =============================================================================
// Scoped
// =============================================================================

type scoped struct {
	name   string
	inner  Interceptor
	policy xscope.Policy
}

// Scoped 以 xscope 策略包装 in。作用域键由 name、目标类型与方法名组成。
func Scoped(name string, in Interceptor, policy xscope.Policy) Interceptor {
	return &scoped{name: name, inner: in, policy: policy}
}

func (s *scoped) Before(a *Advice) error {
	ctx, scopes := xscope.Ensure(a.Context())
	a.SetContext(ctx)
	inv := scopes.Get(xscope.Key(s.name, fmt.Sprintf("%T", a.Target), a.Method))
	if !inv.TryEnter(s.policy) {
		return nil
	}
	entered := false
	defer func() {
		// Before 出错或 panic 时不会有 after 钩子，在此离开
		if !entered {
			_ = inv.Leave(s.policy)
		}
	}()
	if err := s.inner.Before(a); err != nil {
		return err
	}
	a.setLocal(s, inv)
	entered = true
	return nil
}

func (s *scoped) AfterReturn(a *Advice) error {
	return s.leave(a, s.inner.AfterReturn)
}

func (s *scoped) AfterException(a *Advice) error {
	return s.leave(a, s.inner.AfterException)
}

func (s *scoped) leave(a *Advice, hook func(*Advice) error) error {
	v, ok := a.getLocal(s)
	if !ok {
		return nil
	}
	a.deleteLocal(s)
	inv := v.(*xscope.Invocation)
	defer func() { _ = inv.Leave(s.policy) }()
	return hook(a)
}
