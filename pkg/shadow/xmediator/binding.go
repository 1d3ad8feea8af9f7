package xmediator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/observability/xmetrics"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xreport"
)

// Deriver 由业务后端派生影子后端。找不到影子配置时应返回包装了 ErrNoShadowConfig 的错误。
type Deriver[T any] func(ctx context.Context, business T) (T, error)

// =============================================================================
// Mediator
// =============================================================================

// Mediator 绑定共享的依赖：上报端、观测器、日志器。
type Mediator struct {
	reporter xreport.Reporter
	observer xmetrics.Observer
	logger   *slog.Logger
}

// Option Mediator 配置选项。
type Option func(*Mediator)

// WithReporter 设置错误上报端。
func WithReporter(r xreport.Reporter) Option {
	return func(m *Mediator) { m.reporter = xreport.OrNoop(r) }
}

// WithObserver 设置观测器。
func WithObserver(o xmetrics.Observer) Option {
	return func(m *Mediator) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithLogger 设置日志器。
func WithLogger(l *slog.Logger) Option {
	return func(m *Mediator) {
		if l != nil {
			m.logger = l
		}
	}
}

// New 创建 Mediator。
func New(opts ...Option) *Mediator {
	m := &Mediator{
		reporter: xreport.NoopReporter{},
		observer: xmetrics.NoopObserver{},
		logger:   xlog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// =============================================================================
// Binding
// =============================================================================

// BindOption 绑定配置选项。
type BindOption func(*bindOptions)

type bindOptions struct {
	identity    string
	sameBackend bool
	recordType  xreport.Type
	closer      func(any) error
}

// WithIdentity 设置业务后端标识，出现在错误与上报中。
func WithIdentity(id string) BindOption {
	return func(o *bindOptions) { o.identity = id }
}

// WithSameBackend 影子表模式：影子流量复用业务后端。
func WithSameBackend() BindOption {
	return func(o *bindOptions) { o.sameBackend = true }
}

// WithRecordType 设置派生失败时上报的记录类型，默认 DataSource。
func WithRecordType(t xreport.Type) BindOption {
	return func(o *bindOptions) { o.recordType = t }
}

// WithCloser 设置影子后端的关闭函数。未设置时，实现 io.Closer 的影子后端按 Close 关闭。
func WithCloser[T any](fn func(T) error) BindOption {
	return func(o *bindOptions) {
		if fn == nil {
			return
		}
		o.closer = func(v any) error {
			t, ok := v.(T)
			if !ok {
				return nil
			}
			return fn(t)
		}
	}
}

// Binding 一个逻辑资源的业务/影子后端对，并发安全。
type Binding[T any] struct {
	key      string
	business T
	derive   Deriver[T]
	opts     bindOptions
	m        *Mediator

	shadow atomic.Pointer[T]
	mu     sync.Mutex
	closed bool

	derivations atomic.Int64
}

// Bind 创建绑定。m 为 nil 时使用默认 Mediator。
func Bind[T any](m *Mediator, key string, business T, derive Deriver[T], opts ...BindOption) *Binding[T] {
	if m == nil {
		m = New()
	}
	o := bindOptions{recordType: xreport.TypeDataSource}
	for _, opt := range opts {
		opt(&o)
	}
	return &Binding[T]{
		key:      key,
		business: business,
		derive:   derive,
		opts:     o,
		m:        m,
	}
}

// Key 返回逻辑键。
func (b *Binding[T]) Key() string { return b.key }

// Business 返回业务后端。
func (b *Binding[T]) Business() T { return b.business }

// Shadow 返回已派生的影子后端，尚未派生时返回 false。
func (b *Binding[T]) Shadow() (T, bool) {
	if p := b.shadow.Load(); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Derivations 返回累计派生次数（Reset 后重新派生会再次计数）。
func (b *Binding[T]) Derivations() int64 { return b.derivations.Load() }

// Resolve 按流量类型返回后端。
func (b *Binding[T]) Resolve(ctx context.Context, shadow bool) (T, error) {
	if isNil(b.business) {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrBusinessMissing, b.key)
	}
	if !shadow {
		return b.business, nil
	}
	if b.opts.sameBackend {
		return b.business, nil
	}
	if p := b.shadow.Load(); p != nil {
		return *p, nil
	}
	return b.slowResolve(ctx)
}

// ResolveContext 按 ctx 当前调用上下文的影子标记返回后端。
func (b *Binding[T]) ResolveContext(ctx context.Context) (T, error) {
	return b.Resolve(ctx, xinvoke.IsClusterTest(ctx))
}

func (b *Binding[T]) slowResolve(ctx context.Context) (T, error) {
	var zero T
	b.mu.Lock()
	defer b.mu.Unlock()

	if p := b.shadow.Load(); p != nil {
		return *p, nil
	}
	if b.closed {
		return zero, fmt.Errorf("%w: %s", ErrBindingClosed, b.key)
	}
	if b.derive == nil {
		return zero, b.unavailable(ctx, ErrNilDeriver)
	}

	ctx, span := xmetrics.Start(ctx, b.m.observer, xmetrics.SpanOptions{
		Component: "xmediator",
		Operation: "derive_shadow",
		Kind:      xmetrics.KindClient,
		Attrs:     []xmetrics.Attr{xmetrics.String("key", b.key)},
	})
	v, err := b.derive(ctx, b.business)
	if err == nil && isNil(v) {
		err = ErrNoShadowConfig
	}
	span.End(xmetrics.Result{Err: err})
	if err != nil {
		return zero, b.unavailable(ctx, err)
	}

	b.shadow.Store(&v)
	b.derivations.Add(1)
	b.m.logger.InfoContext(ctx, "xmediator: shadow backend created",
		slog.String("key", b.key),
		slog.String("business", b.opts.identity))
	return v, nil
}

func (b *Binding[T]) unavailable(ctx context.Context, cause error) error {
	err := &ShadowUnavailableError{Key: b.key, BusinessIdentity: b.opts.identity, Err: cause}
	b.m.logger.ErrorContext(ctx, "xmediator: shadow backend unavailable",
		slog.String("key", b.key),
		slog.String("business", b.opts.identity),
		slog.Any("error", cause))
	b.m.reporter.Report(xreport.Record{
		Type:    b.opts.recordType,
		Code:    codeFor(b.opts.recordType),
		Message: err.Error(),
		Detail:  "business=" + b.opts.identity,
		TraceID: xinvoke.TraceID(ctx),
	})
	return err
}

func codeFor(t xreport.Type) string {
	if t == xreport.TypeCache {
		return xreport.CodeCacheUnavailable
	}
	return xreport.CodeDataSourceUnavailable
}

// Reset 丢弃已派生的影子后端并关闭它，下次影子访问按最新配置重新派生。
func (b *Binding[T]) Reset() error {
	b.mu.Lock()
	p := b.shadow.Swap(nil)
	b.mu.Unlock()
	if p == nil {
		return nil
	}
	return b.closeShadow(*p)
}

// Close 关闭影子后端并禁止后续派生。业务后端由调用方管理。
func (b *Binding[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	p := b.shadow.Swap(nil)
	b.mu.Unlock()
	if p == nil {
		return nil
	}
	return b.closeShadow(*p)
}

func (b *Binding[T]) closeShadow(v T) error {
	var err error
	switch {
	case b.opts.closer != nil:
		err = b.opts.closer(v)
	default:
		if c, ok := any(v).(io.Closer); ok {
			err = c.Close()
		}
	}
	if err != nil {
		b.m.logger.Warn("xmediator: close shadow backend failed",
			slog.String("key", b.key), slog.Any("error", err))
		return fmt.Errorf("xmediator: close shadow %s: %w", b.key, err)
	}
	return nil
}

// Resolve 按流量类型返回 b 的后端，等价于 b.Resolve。
func Resolve[T any](ctx context.Context, b *Binding[T], shadow bool) (T, error) {
	if b == nil {
		var zero T
		return zero, ErrBusinessMissing
	}
	return b.Resolve(ctx, shadow)
}

// =============================================================================
// Registry
// =============================================================================

// Registry 按逻辑键管理同一类资源的绑定，配置刷新时统一 Reset。
type Registry[T any] struct {
	m        *Mediator
	mu       sync.RWMutex
	bindings map[string]*Binding[T]
}

// NewRegistry 创建注册表。
func NewRegistry[T any](m *Mediator) *Registry[T] {
	return &Registry[T]{m: m, bindings: make(map[string]*Binding[T])}
}

// GetOrBind 返回 key 的绑定，不存在时以给定参数创建。
func (r *Registry[T]) GetOrBind(key string, business T, derive Deriver[T], opts ...BindOption) *Binding[T] {
	r.mu.RLock()
	b, ok := r.bindings[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bindings[key]; ok {
		return b
	}
	b = Bind(r.m, key, business, derive, opts...)
	r.bindings[key] = b
	return b
}

// Get 返回 key 的绑定。
func (r *Registry[T]) Get(key string) (*Binding[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[key]
	return b, ok
}

// Len 返回绑定数量。
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

// ResetAll 重置所有绑定的影子后端。
func (r *Registry[T]) ResetAll() error {
	var errs []error
	for _, b := range r.snapshot() {
		errs = append(errs, b.Reset())
	}
	return errors.Join(errs...)
}

// Close 关闭所有绑定并清空注册表。
func (r *Registry[T]) Close() error {
	r.mu.Lock()
	all := r.bindings
	r.bindings = make(map[string]*Binding[T])
	r.mu.Unlock()

	var errs []error
	for _, b := range all {
		errs = append(errs, b.Close())
	}
	return errors.Join(errs...)
}

func (r *Registry[T]) snapshot() []*Binding[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Binding[T], 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	return out
}

// isNil 报告 v 是否为 nil（包括带类型的 nil 指针、接口、映射等）。
func isNil[T any](v T) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
