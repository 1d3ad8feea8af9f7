package xwhitelist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/observability/xmetrics"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xreport"
)

// DefaultCacheSize 允许结果缓存的默认容量。
const DefaultCacheSize = 4096

// 判定原因。
const (
	ReasonMatched    = "matched"
	ReasonCached     = "cached"
	ReasonDisabled   = "whitelist disabled"
	ReasonProduction = "production traffic"
	ReasonPassCheck  = "boundary already checked"
	ReasonNotListed  = "not in whitelist"
)

// Decision 白名单判定结果。
type Decision struct {
	Allowed bool
	Reason  string
}

type cacheKey struct {
	gen    uint64
	kind   Kind
	target string
}

// Gate 白名单闸门，并发安全。
type Gate struct {
	snap    atomic.Pointer[snapshot]
	enabled atomic.Bool
	cache   *lru.Cache[cacheKey, struct{}]

	// writeMu 串行化 Replace/Add 的读改写
	writeMu sync.Mutex

	reporter xreport.Reporter
	observer xmetrics.Observer
	logger   *slog.Logger
	appName  string
}

// Option 闸门配置选项。
type Option func(*gateOptions)

type gateOptions struct {
	cacheSize int
	reporter  xreport.Reporter
	observer  xmetrics.Observer
	logger    *slog.Logger
	appName   string
	disabled  bool
}

// WithCacheSize 设置允许结果缓存容量。
func WithCacheSize(n int) Option {
	return func(o *gateOptions) { o.cacheSize = n }
}

// WithReporter 设置错误上报端。
func WithReporter(r xreport.Reporter) Option {
	return func(o *gateOptions) { o.reporter = xreport.OrNoop(r) }
}

// WithObserver 设置观测器。
func WithObserver(ob xmetrics.Observer) Option {
	return func(o *gateOptions) {
		if ob != nil {
			o.observer = ob
		}
	}
}

// WithLogger 设置日志器。
func WithLogger(l *slog.Logger) Option {
	return func(o *gateOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAppName 设置应用名，用于拒绝消息。
func WithAppName(name string) Option {
	return func(o *gateOptions) { o.appName = name }
}

// WithDisabled 创建时关闭白名单（所有检查放行）。
func WithDisabled() Option {
	return func(o *gateOptions) { o.disabled = true }
}

// New 创建闸门。
func New(entries []Entry, opts ...Option) (*Gate, error) {
	o := gateOptions{
		cacheSize: DefaultCacheSize,
		reporter:  xreport.NoopReporter{},
		observer:  xmetrics.NoopObserver{},
		logger:    xlog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCacheSize, o.cacheSize)
	}
	cache, err := lru.New[cacheKey, struct{}](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("xwhitelist: create cache: %w", err)
	}
	snap, err := buildSnapshot(1, entries)
	if err != nil {
		return nil, err
	}

	g := &Gate{
		cache:    cache,
		reporter: o.reporter,
		observer: o.observer,
		logger:   o.logger,
		appName:  o.appName,
	}
	g.snap.Store(snap)
	g.enabled.Store(!o.disabled)
	return g, nil
}

// Replace 原子替换整份白名单并使缓存失效。条目无效时保持原白名单不变。
func (g *Gate) Replace(entries []Entry) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.replaceLocked(entries)
}

// Add 追加条目，语义同 Replace。
func (g *Gate) Add(entries ...Entry) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	cur := g.snap.Load()
	merged := make([]Entry, 0, len(cur.entries)+len(entries))
	merged = append(merged, cur.entries...)
	merged = append(merged, entries...)
	return g.replaceLocked(merged)
}

func (g *Gate) replaceLocked(entries []Entry) error {
	next, err := buildSnapshot(g.snap.Load().gen+1, entries)
	if err != nil {
		return err
	}
	g.snap.Store(next)
	g.cache.Purge()
	g.logger.Info("xwhitelist: whitelist replaced",
		slog.Uint64("generation", next.gen),
		slog.Int("entries", len(entries)))
	return nil
}

// Entries 返回当前白名单条目的副本。
func (g *Gate) Entries() []Entry {
	return append([]Entry(nil), g.snap.Load().entries...)
}

// Generation 返回当前白名单代数，每次替换加一。
func (g *Gate) Generation() uint64 { return g.snap.Load().gen }

// SetEnabled 开关白名单。关闭时所有检查放行。
func (g *Gate) SetEnabled(v bool) { g.enabled.Store(v) }

// Enabled 报告白名单是否开启。
func (g *Gate) Enabled() bool { return g.enabled.Load() }

// Check 检查目标是否在白名单中，不区分流量类型。
func (g *Gate) Check(target string, kind Kind) Decision {
	if !g.enabled.Load() {
		return Decision{Allowed: true, Reason: ReasonDisabled}
	}
	snap := g.snap.Load()
	key := cacheKey{gen: snap.gen, kind: kind, target: target}
	if _, ok := g.cache.Get(key); ok {
		return Decision{Allowed: true, Reason: ReasonCached}
	}
	if !snap.match(target, kind) {
		return Decision{Reason: ReasonNotListed}
	}
	g.cache.Add(key, struct{}{})
	return Decision{Allowed: true, Reason: ReasonMatched}
}

// CheckContext 按 ctx 的当前调用上下文检查目标。
//
// 生产流量直接放行。对 URL 与 RPC 目标，若当前上下文或其父上下文是已通过检查的
// Web/RPC 入站边界，则跳过检查。
func (g *Gate) CheckContext(ctx context.Context, target string, kind Kind) Decision {
	ic := xinvoke.Current(ctx)
	if ic == nil || !ic.IsClusterTest() {
		return Decision{Allowed: true, Reason: ReasonProduction}
	}
	if (kind == KindURL || kind == KindRPC) && boundaryPassed(ic) {
		return Decision{Allowed: true, Reason: ReasonPassCheck}
	}
	return g.Check(target, kind)
}

func boundaryPassed(ic *xinvoke.InvokeContext) bool {
	if ic.Type().IsBoundary() && ic.PassCheck() {
		return true
	}
	p := ic.Parent()
	return p != nil && p.Type().IsBoundary() && p.PassCheck()
}

// Enforce 检查目标，拒绝时上报 whiteList-0001 并返回 *DeniedError。
//
// 放行且当前上下文是 Web/RPC 边界时标记 passCheck，同一边界内的后续检查被跳过。
func (g *Gate) Enforce(ctx context.Context, target string, kind Kind) error {
	d := g.CheckContext(ctx, target, kind)
	if d.Allowed {
		if ic := xinvoke.Current(ctx); ic != nil && ic.IsClusterTest() && ic.Type().IsBoundary() {
			ic.MarkPassCheck()
		}
		return nil
	}

	_, span := xmetrics.Start(ctx, g.observer, xmetrics.SpanOptions{
		Component: "xwhitelist",
		Operation: "deny",
		Attrs: []xmetrics.Attr{
			xmetrics.String("kind", kind.String()),
			xmetrics.String("target", target),
		},
	})
	err := &DeniedError{Target: target, Kind: kind, Reason: d.Reason}
	span.End(xmetrics.Result{Status: xmetrics.StatusDenied, Err: err})

	msg := "WhiteListError: [" + g.appName + "] " + kind.String() + " [" + target + "] is not allowed in WhiteList."
	g.logger.ErrorContext(ctx, "xwhitelist: shadow call denied",
		slog.String("kind", kind.String()),
		slog.String("target", target),
		slog.String("trace_id", xinvoke.TraceID(ctx)))
	g.reporter.Report(xreport.Record{
		Type:    xreport.TypeAgent,
		Code:    xreport.CodeWhitelistDenied,
		Message: msg,
		Detail:  msg,
		TraceID: xinvoke.TraceID(ctx),
	})
	return err
}
