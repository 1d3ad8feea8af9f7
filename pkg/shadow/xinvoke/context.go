package xinvoke

import (
	"maps"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// RootInvokeID 根调用编号。
const RootInvokeID = "0"

// InvokeType 调用类型。
type InvokeType int

// 调用类型取值。
const (
	InvokeUnknown InvokeType = iota
	InvokeWebServer
	InvokeRPC
	InvokeDB
	InvokeCache
	InvokeMQ
	InvokeSearch
	InvokeFS
	InvokeJob
)

var invokeTypeNames = [...]string{
	InvokeUnknown:   "unknown",
	InvokeWebServer: "web-server",
	InvokeRPC:       "rpc",
	InvokeDB:        "db",
	InvokeCache:     "cache",
	InvokeMQ:        "mq",
	InvokeSearch:    "search",
	InvokeFS:        "fs",
	InvokeJob:       "job",
}

// String 返回调用类型名称。
func (t InvokeType) String() string {
	if t < 0 || int(t) >= len(invokeTypeNames) {
		return "unknown"
	}
	return invokeTypeNames[t]
}

// IsBoundary 报告该类型是否是入站信任边界（Web 服务端或 RPC）。
func (t InvokeType) IsBoundary() bool {
	return t == InvokeWebServer || t == InvokeRPC
}

// Scratch 调用过程中由拦截器填写的可变字段。
type Scratch struct {
	MiddlewareName string
	ServiceName    string
	MethodName     string
	RequestSize    int64
	ResponseSize   int64
	ResultCode     string
	RemoteIP       string
	Port           int
	Request        string
	Response       string
	Ext            string
}

// =============================================================================
// InvokeContext
// =============================================================================

// InvokeContext 一次调用的上下文。
//
// 标识与影子标记在创建后不可变；Scratch 与本地属性可由同一工作单元修改。
// 销毁后写操作返回 ErrContextDestroyed。
type InvokeContext struct {
	traceID     string
	invokeID    string
	clusterTest bool
	debug       bool
	invokeType  InvokeType
	parent      *InvokeContext
	startTime   time.Time

	// childSeq 与分离副本共享，保证同一编号下的子节点序号不重复
	childSeq *atomic.Int32
	detached bool

	destroyed atomic.Bool
	passCheck atomic.Bool

	mu      sync.Mutex
	scratch Scratch
	attrs   map[string]string
}

// Option 根上下文配置选项。
type Option func(*InvokeContext)

// WithTraceID 指定 traceID，为空时忽略。
func WithTraceID(id string) Option {
	return func(c *InvokeContext) {
		if id != "" {
			c.traceID = id
		}
	}
}

// WithInvokeID 指定 invokeID，为空时忽略。
func WithInvokeID(id string) Option {
	return func(c *InvokeContext) {
		if id != "" {
			c.invokeID = id
		}
	}
}

// WithClusterTest 设置影子标记。
func WithClusterTest(v bool) Option {
	return func(c *InvokeContext) { c.clusterTest = v }
}

// WithDebug 设置调试标记。
func WithDebug(v bool) Option {
	return func(c *InvokeContext) { c.debug = v }
}

// WithType 设置调用类型。
func WithType(t InvokeType) Option {
	return func(c *InvokeContext) { c.invokeType = t }
}

// WithStartTime 设置开始时间，主要用于测试。
func WithStartTime(t time.Time) Option {
	return func(c *InvokeContext) { c.startTime = t }
}

// NewRoot 创建根上下文。未指定 traceID 时生成新的 traceID。
func NewRoot(opts ...Option) *InvokeContext {
	c := &InvokeContext{
		invokeID:  RootInvokeID,
		startTime: time.Now(),
		childSeq:  new(atomic.Int32),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.traceID == "" {
		c.traceID = NewTraceID()
	}
	return c
}

// Upstream 上游传入的标识与已判定的标记。
type Upstream struct {
	TraceID     string
	InvokeID    string
	ClusterTest bool
	Debug       bool
}

// FromUpstream 在入站边界基于上游标识创建上下文。
// 上游 invokeID 为空时作为根节点，traceID 为空时重新生成。
func FromUpstream(up Upstream, typ InvokeType) *InvokeContext {
	return NewRoot(
		WithTraceID(up.TraceID),
		WithInvokeID(up.InvokeID),
		WithClusterTest(up.ClusterTest),
		WithDebug(up.Debug),
		WithType(typ),
	)
}

// NewChild 创建子上下文，继承 traceID、影子标记与调试标记。
func (c *InvokeContext) NewChild(typ InvokeType) *InvokeContext {
	return c.newChild(typ, c.clusterTest)
}

// NewBoundaryChild 在信任边界上创建子上下文。
//
// classified 为该跳的分类结果：父上下文已是影子时结果恒为影子，
// 否则使用 classified。生产上下文只能经由此入口变为影子。
func (c *InvokeContext) NewBoundaryChild(typ InvokeType, classified bool) *InvokeContext {
	return c.newChild(typ, c.clusterTest || classified)
}

func (c *InvokeContext) newChild(typ InvokeType, clusterTest bool) *InvokeContext {
	seq := c.childSeq.Add(1)
	return &InvokeContext{
		traceID:     c.traceID,
		invokeID:    c.invokeID + "." + strconv.Itoa(int(seq)),
		clusterTest: clusterTest,
		debug:       c.debug,
		invokeType:  typ,
		parent:      c,
		startTime:   time.Now(),
		childSeq:    new(atomic.Int32),
	}
}

// detachedCopy 返回用于其他 goroutine 的分离副本。
// 副本与原上下文共享标识、标记与子序号，Scratch 与属性各自独立。
func (c *InvokeContext) detachedCopy() *InvokeContext {
	cp := &InvokeContext{
		traceID:     c.traceID,
		invokeID:    c.invokeID,
		clusterTest: c.clusterTest,
		debug:       c.debug,
		invokeType:  c.invokeType,
		parent:      c.parent,
		startTime:   c.startTime,
		childSeq:    c.childSeq,
		detached:    true,
	}
	cp.passCheck.Store(c.passCheck.Load())
	c.mu.Lock()
	cp.attrs = maps.Clone(c.attrs)
	c.mu.Unlock()
	return cp
}

// TraceID 返回 traceID。
func (c *InvokeContext) TraceID() string { return c.traceID }

// InvokeID 返回层级调用编号。
func (c *InvokeContext) InvokeID() string { return c.invokeID }

// IsClusterTest 报告是否为影子流量。
func (c *InvokeContext) IsClusterTest() bool { return c.clusterTest }

// IsDebug 报告是否为调试流量。
func (c *InvokeContext) IsDebug() bool { return c.debug }

// Type 返回调用类型。
func (c *InvokeContext) Type() InvokeType { return c.invokeType }

// Parent 返回父上下文，根节点返回 nil。
func (c *InvokeContext) Parent() *InvokeContext { return c.parent }

// StartTime 返回开始时间。
func (c *InvokeContext) StartTime() time.Time { return c.startTime }

// IsEntrance 报告是否为整条链路的入口。
func (c *InvokeContext) IsEntrance() bool { return c.invokeID == RootInvokeID }

// IsDetached 报告是否为 Restore 产生的分离副本。
func (c *InvokeContext) IsDetached() bool { return c.detached }

// Destroyed 报告是否已销毁。
func (c *InvokeContext) Destroyed() bool { return c.destroyed.Load() }

func (c *InvokeContext) destroy() { c.destroyed.Store(true) }

// PassCheck 报告本边界是否已通过白名单检查。
func (c *InvokeContext) PassCheck() bool { return c.passCheck.Load() }

// MarkPassCheck 标记本边界已通过白名单检查。
func (c *InvokeContext) MarkPassCheck() { c.passCheck.Store(true) }

// Update 修改 Scratch 字段。上下文已销毁时返回 ErrContextDestroyed。
func (c *InvokeContext) Update(fn func(s *Scratch)) error {
	if c.Destroyed() {
		return ErrContextDestroyed
	}
	c.mu.Lock()
	fn(&c.scratch)
	c.mu.Unlock()
	return nil
}

// Scratch 返回 Scratch 字段的副本。
func (c *InvokeContext) Scratch() Scratch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scratch
}

// SetAttr 设置本地属性。上下文已销毁时返回 ErrContextDestroyed。
func (c *InvokeContext) SetAttr(key, value string) error {
	if c.Destroyed() {
		return ErrContextDestroyed
	}
	c.mu.Lock()
	if c.attrs == nil {
		c.attrs = make(map[string]string)
	}
	c.attrs[key] = value
	c.mu.Unlock()
	return nil
}

// Attr 返回本地属性。
func (c *InvokeContext) Attr(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.attrs[key]
	return v, ok
}

// Attrs 返回本地属性的副本。
func (c *InvokeContext) Attrs() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.attrs)
}
