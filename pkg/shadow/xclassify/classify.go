package xclassify

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/observability/xmetrics"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xreport"
)

// UserAgentSuffix 压测工具在 User-Agent 末尾附加的标记。
const UserAgentSuffix = "PerfomanceTest"

// Source 判定依据。
type Source int

// 判定依据取值。
const (
	SourceNone Source = iota
	SourceParent
	SourceHeader
	SourceName
)

// String 返回判定依据名称。
func (s Source) String() string {
	switch s {
	case SourceParent:
		return "parent"
	case SourceHeader:
		return "header"
	case SourceName:
		return "name"
	default:
		return "none"
	}
}

// Markers 从一跳调用的传输层收集到的判定标记。
type Markers struct {
	// ClusterTest 显式影子头部的原始值。
	ClusterTest string
	// UserAgent HTTP User-Agent。
	UserAgent string
	// Debug 调试头部的原始值。
	Debug string
	// Names 队列、主题、路由键、交换机、消费者标签或 JNDI 名称。
	Names []string
	// Parent 已建立的父上下文，ClassifyContext 会自动从 ctx 中补全。
	Parent *xinvoke.InvokeContext

	// TraceID 与 InvokeID 为上游传入的标识，只在没有父上下文时用于创建新上下文。
	TraceID  string
	InvokeID string
}

// MarkersFrom 由 xinvoke.Extract 的结果构造 Markers。
func MarkersFrom(in xinvoke.Incoming, names ...string) Markers {
	return Markers{
		ClusterTest: in.ClusterTest,
		Debug:       in.Debug,
		Names:       names,
		TraceID:     in.TraceID,
		InvokeID:    in.InvokeID,
	}
}

// Result 判定结果。
type Result struct {
	Shadow bool
	Debug  bool
	Source Source
}

// =============================================================================
// Classifier
// =============================================================================

// Classifier 流量判定器，并发安全。
type Classifier struct {
	sw       *Switch
	naming   atomic.Pointer[Naming]
	reporter xreport.Reporter
	observer xmetrics.Observer
	logger   *slog.Logger
}

// Option 判定器配置选项。
type Option func(*Classifier)

// WithSwitch 设置影子开关，默认创建一个开启状态的开关。
func WithSwitch(sw *Switch) Option {
	return func(c *Classifier) {
		if sw != nil {
			c.sw = sw
		}
	}
}

// WithNaming 设置名称规则。
func WithNaming(n Naming) Option {
	return func(c *Classifier) { c.naming.Store(&n) }
}

// WithReporter 设置错误上报端。
func WithReporter(r xreport.Reporter) Option {
	return func(c *Classifier) { c.reporter = xreport.OrNoop(r) }
}

// WithObserver 设置观测器。
func WithObserver(o xmetrics.Observer) Option {
	return func(c *Classifier) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithLogger 设置日志器。
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// New 创建判定器。
func New(opts ...Option) *Classifier {
	c := &Classifier{
		reporter: xreport.NoopReporter{},
		observer: xmetrics.NoopObserver{},
		logger:   xlog.Default(),
	}
	c.naming.Store(&DefaultNaming)
	for _, opt := range opts {
		opt(c)
	}
	if c.sw == nil {
		c.sw = NewSwitch(true)
	}
	return c
}

// Switch 返回影子开关。
func (c *Classifier) Switch() *Switch { return c.sw }

// Naming 返回当前名称规则。
func (c *Classifier) Naming() Naming { return *c.naming.Load() }

// SetNaming 替换名称规则，配置刷新时调用。
func (c *Classifier) SetNaming(n Naming) { c.naming.Store(&n) }

// Classify 判定一跳调用。
//
// 判定为影子但开关关闭时，返回 Shadow 为 true 的结果与 *ShadowDisabledError，
// 调用方必须中止当前操作。
func (c *Classifier) Classify(m Markers) (Result, error) {
	res := c.decide(m)
	if !res.Shadow || c.sw.Enabled() {
		return res, nil
	}

	code, reason := c.sw.Reason()
	err := &ShadowDisabledError{Source: res.Source, Code: code, Reason: reason}
	c.logger.Error("xclassify: shadow traffic rejected",
		slog.String("source", res.Source.String()),
		slog.Any("names", m.Names),
		slog.String("reason", reason))
	c.reporter.Report(xreport.Record{
		Type:    xreport.TypeAgent,
		Code:    xreport.CodeShadowDisabled,
		Message: err.Error(),
		Detail:  detail(m),
		TraceID: m.TraceID,
	})
	return res, err
}

func (c *Classifier) decide(m Markers) Result {
	res := Result{Debug: isTruthy(m.Debug)}
	if m.Parent != nil {
		res.Debug = res.Debug || m.Parent.IsDebug()
		if m.Parent.IsClusterTest() {
			res.Shadow, res.Source = true, SourceParent
			return res
		}
	}

	switch headerVerdict(m.ClusterTest, m.UserAgent) {
	case verdictShadow:
		res.Shadow, res.Source = true, SourceHeader
		return res
	case verdictProduction:
		res.Source = SourceHeader
		return res
	}

	naming := c.Naming()
	for _, name := range m.Names {
		if naming.IsShadow(name) {
			res.Shadow, res.Source = true, SourceName
			return res
		}
	}
	return res
}

// ClassifyContext 判定一跳调用并在 ctx 的调用栈上压入本跳的上下文。
//
// ctx 中已有上下文时作为父上下文，创建边界子上下文；否则以上游标识创建新上下文。
// 出错时不压栈。成功时调用方负责 xinvoke.Exit。
func (c *Classifier) ClassifyContext(ctx context.Context, m Markers, typ xinvoke.InvokeType) (context.Context, *xinvoke.InvokeContext, Result, error) {
	ctx, span := xmetrics.Start(ctx, c.observer, xmetrics.SpanOptions{
		Component: "xclassify",
		Operation: "classify",
		Kind:      xmetrics.KindServer,
		Attrs:     []xmetrics.Attr{xmetrics.String("invoke_type", typ.String())},
	})

	if m.Parent == nil {
		m.Parent = xinvoke.Current(ctx)
	}
	res, err := c.Classify(m)
	if err != nil {
		span.End(xmetrics.Result{Status: xmetrics.StatusDenied, Err: err, Attrs: resultAttrs(res)})
		return ctx, nil, res, err
	}

	var ic *xinvoke.InvokeContext
	if m.Parent != nil {
		ic = m.Parent.NewBoundaryChild(typ, res.Shadow)
	} else {
		ic = xinvoke.FromUpstream(xinvoke.Upstream{
			TraceID:     m.TraceID,
			InvokeID:    m.InvokeID,
			ClusterTest: res.Shadow,
			Debug:       res.Debug,
		}, typ)
	}
	ctx, err = xinvoke.EnterWith(ctx, ic)
	span.End(xmetrics.Result{Err: err, Attrs: resultAttrs(res)})
	if err != nil {
		return ctx, nil, res, err
	}
	return ctx, ic, res, nil
}

func resultAttrs(res Result) []xmetrics.Attr {
	return []xmetrics.Attr{
		xmetrics.Bool("shadow", res.Shadow),
		xmetrics.String("source", res.Source.String()),
	}
}

// =============================================================================
// 头部取值
// =============================================================================

type verdict int

const (
	verdictAbsent verdict = iota
	verdictShadow
	verdictProduction
)

func headerVerdict(value, userAgent string) verdict {
	v := strings.TrimSpace(value)
	switch {
	case isTruthy(v):
		return verdictShadow
	case v == "0" || strings.EqualFold(v, "false"):
		return verdictProduction
	case strings.HasSuffix(strings.TrimSpace(userAgent), UserAgentSuffix), v == UserAgentSuffix:
		return verdictShadow
	default:
		return verdictAbsent
	}
}

// IsShadowHeader 报告影子头部取值是否表示影子流量。
func IsShadowHeader(value string) bool {
	return headerVerdict(value, "") == verdictShadow
}

func isTruthy(v string) bool {
	v = strings.TrimSpace(v)
	return v == "1" || strings.EqualFold(v, "true")
}

func detail(m Markers) string {
	var b strings.Builder
	b.WriteString("header=")
	b.WriteString(m.ClusterTest)
	if len(m.Names) > 0 {
		b.WriteString(" names=")
		b.WriteString(strings.Join(m.Names, ","))
	}
	return b.String()
}
