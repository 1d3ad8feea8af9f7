package xscope

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omeyang/xshadow/pkg/observability/xlog"
)

// Policy 执行策略。
type Policy int

// 执行策略取值。
const (
	Boundary Policy = iota
	Always
	Internal
)

// String 返回策略名称。
func (p Policy) String() string {
	switch p {
	case Boundary:
		return "boundary"
	case Always:
		return "always"
	case Internal:
		return "internal"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Key 组合作用域键：拦截器#目标_方法。
func Key(interceptor, target, method string) string {
	return interceptor + "#" + target + "_" + method
}

// =============================================================================
// Invocation
// =============================================================================

// Invocation 某个作用域键在当前工作单元内的状态。Depth 为 0 表示空闲。
type Invocation struct {
	key    string
	depth  int
	logger *slog.Logger
}

// Key 返回作用域键。
func (i *Invocation) Key() string { return i.key }

// Depth 返回当前嵌套深度。
func (i *Invocation) Depth() int { return i.depth }

// Active 报告是否已进入。
func (i *Invocation) Active() bool { return i.depth > 0 }

// TryEnter 尝试按策略进入，返回是否进入成功。
func (i *Invocation) TryEnter(p Policy) bool {
	switch p {
	case Always:
		i.depth++
		return true
	case Boundary:
		if i.depth > 0 {
			return false
		}
		i.depth = 1
		return true
	case Internal:
		if i.depth == 0 {
			return false
		}
		i.depth++
		return true
	default:
		return false
	}
}

// CanLeave 报告按策略当前是否处于可离开的层级。
func (i *Invocation) CanLeave(p Policy) bool {
	switch p {
	case Always:
		return i.depth > 0
	case Boundary:
		return i.depth == 1
	case Internal:
		return i.depth > 1
	default:
		return false
	}
}

// Leave 按策略离开。没有对应进入时返回 ErrLeaveWithoutEnter 并记录日志，状态不变。
func (i *Invocation) Leave(p Policy) error {
	if !i.CanLeave(p) {
		i.logger.Error("xscope: leave without enter",
			slog.String("scope", i.key),
			slog.String("policy", p.String()),
			slog.Int("depth", i.depth))
		return ErrLeaveWithoutEnter
	}
	i.depth--
	return nil
}

// =============================================================================
// Scopes
// =============================================================================

// Scopes 一个工作单元内的全部作用域状态。非并发安全。
type Scopes struct {
	m      map[string]*Invocation
	logger *slog.Logger
}

// Option Scopes 配置选项。
type Option func(*Scopes)

// WithLogger 设置日志器。
func WithLogger(l *slog.Logger) Option {
	return func(s *Scopes) {
		if l != nil {
			s.logger = l
		}
	}
}

// New 创建空的作用域集合。
func New(opts ...Option) *Scopes {
	s := &Scopes{m: make(map[string]*Invocation), logger: xlog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get 返回 key 对应的 Invocation，不存在时创建。
func (s *Scopes) Get(key string) *Invocation {
	inv, ok := s.m[key]
	if !ok {
		inv = &Invocation{key: key, logger: s.logger}
		s.m[key] = inv
	}
	return inv
}

type contextKey struct{}

// WithScopes 将作用域集合放入 context。
func WithScopes(ctx context.Context, s *Scopes) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext 取出 context 中的作用域集合。
func FromContext(ctx context.Context) (*Scopes, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(contextKey{}).(*Scopes)
	return s, ok && s != nil
}

// Ensure 返回 ctx 中的作用域集合，不存在时创建并放入 context。
func Ensure(ctx context.Context, opts ...Option) (context.Context, *Scopes) {
	if s, ok := FromContext(ctx); ok {
		return ctx, s
	}
	s := New(opts...)
	return WithScopes(ctx, s), s
}

// Guard 按策略进入 key，进入成功时执行 fn 并在返回（包括 panic）时离开。
// 未进入时不执行 fn，返回 (false, nil)。
func Guard(ctx context.Context, key string, p Policy, fn func(ctx context.Context) error) (entered bool, err error) {
	ctx, s := Ensure(ctx)
	inv := s.Get(key)
	if !inv.TryEnter(p) {
		return false, nil
	}
	defer func() {
		if lerr := inv.Leave(p); lerr != nil && err == nil {
			err = lerr
		}
	}()
	return true, fn(ctx)
}
