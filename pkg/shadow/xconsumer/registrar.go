package xconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/omeyang/xshadow/pkg/observability/xlog"
	"github.com/omeyang/xshadow/pkg/observability/xmetrics"
	"github.com/omeyang/xshadow/pkg/resilience/xretry"
	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xreport"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// DefaultWorkers 后台注册池默认并发数。
const DefaultWorkers = 4

// Checker MQ 白名单检查，*xwhitelist.Gate 实现了该接口。
type Checker interface {
	Check(target string, kind xwhitelist.Kind) xwhitelist.Decision
}

// =============================================================================
// 选项
// =============================================================================

// Option 注册器配置选项。
type Option func(*options)

type options struct {
	checker      Checker
	naming       func() xclassify.Naming
	workers      int64
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	reporter     xreport.Reporter
	observer     xmetrics.Observer
	logger       *slog.Logger
}

// WithChecker 设置 MQ 白名单。未设置时不做白名单检查。
func WithChecker(c Checker) Option {
	return func(o *options) { o.checker = c }
}

// WithNaming 设置固定的名称规则。
func WithNaming(n xclassify.Naming) Option {
	return func(o *options) { o.naming = func() xclassify.Naming { return n } }
}

// WithClassifier 每次注册时从判定器读取当前名称规则，配置刷新后立即生效。
func WithClassifier(c *xclassify.Classifier) Option {
	return func(o *options) {
		if c != nil {
			o.naming = c.Naming
		}
	}
}

// WithWorkers 设置后台注册池并发数。
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = int64(n)
		}
	}
}

// WithBackoff 设置重试退避的起点与上限。
func WithBackoff(initial, ceiling time.Duration) Option {
	return func(o *options) {
		o.initialDelay = initial
		o.maxDelay = ceiling
	}
}

// WithMaxAttempts 设置单个消费者的最大尝试次数。
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithReporter 设置错误上报端。
func WithReporter(r xreport.Reporter) Option {
	return func(o *options) { o.reporter = xreport.OrNoop(r) }
}

// WithObserver 设置观测器。
func WithObserver(ob xmetrics.Observer) Option {
	return func(o *options) {
		if ob != nil {
			o.observer = ob
		}
	}
}

// WithLogger 设置日志器。
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// =============================================================================
// Registrar
// =============================================================================

type connState struct {
	cancel context.CancelFunc
	done   chan struct{}
	keys   []string
}

// Registrar 影子消费者注册器，并发安全。
type Registrar struct {
	sub  Subscriber
	opts options
	sem  *semaphore.Weighted

	rootCtx    context.Context
	rootCancel context.CancelFunc

	once OnceExecutor

	mu         sync.Mutex
	closed     bool
	conns      map[string]*connState
	registered map[string]Subscription
	wg         sync.WaitGroup

	attempts atomic.Int64
	failures atomic.Int64
}

// NewRegistrar 创建注册器。
func NewRegistrar(sub Subscriber, opts ...Option) (*Registrar, error) {
	if sub == nil {
		return nil, ErrNilSubscriber
	}
	o := options{
		naming:       func() xclassify.Naming { return xclassify.DefaultNaming },
		workers:      DefaultWorkers,
		maxAttempts:  xretry.RegistrationMaxAttempts,
		initialDelay: xretry.RegistrationInitialDelay,
		maxDelay:     xretry.RegistrationMaxDelay,
		reporter:     xreport.NoopReporter{},
		observer:     xmetrics.NoopObserver{},
		logger:       xlog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registrar{
		sub:        sub,
		opts:       o,
		sem:        semaphore.NewWeighted(o.workers),
		rootCtx:    ctx,
		rootCancel: cancel,
		conns:      make(map[string]*connState),
		registered: make(map[string]Subscription),
	}, nil
}

// RegisterShadowConsumers 为 conn 上的业务消费者安排影子注册，立即返回。
//
// 每个连接 ID 只处理一次，之后的调用是空操作（Deregister 后可再次处理）。
// 注册任务不受 ctx 取消影响，由 Deregister 或 Close 取消。
func (r *Registrar) RegisterShadowConsumers(ctx context.Context, conn Connection) error {
	if conn == nil || conn.ID() == "" {
		return ErrNilConnection
	}
	id := conn.ID()

	var err error
	r.once.Do(id, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			err = ErrRegistrarClosed
			return
		}
		st := &connState{done: make(chan struct{})}
		var taskCtx context.Context
		taskCtx, st.cancel = context.WithCancel(r.rootCtx)
		r.conns[id] = st
		consumers := conn.Consumers()
		r.wg.Add(1)
		go r.run(taskCtx, st, conn, consumers)
	})
	if err != nil {
		r.once.Forget(id)
		return err
	}
	r.opts.logger.DebugContext(ctx, "xconsumer: connection scheduled", slog.String("conn", id))
	return nil
}

func (r *Registrar) run(ctx context.Context, st *connState, conn Connection, consumers []Consumer) {
	defer r.wg.Done()
	defer close(st.done)

	naming := r.opts.naming()
	var g errgroup.Group
	for _, c := range consumers {
		if isShadowConsumer(naming, c) {
			continue
		}
		if r.opts.checker != nil {
			if d := r.opts.checker.Check(c.Target(), xwhitelist.KindMQTopic); !d.Allowed {
				r.opts.logger.WarnContext(ctx, "xconsumer: business topic not in whitelist, shadow consumer skipped",
					slog.String("conn", conn.ID()),
					slog.String("target", c.Target()),
					slog.String("reason", d.Reason))
				continue
			}
		}
		sc := shadowOf(naming, c)
		g.Go(func() error {
			r.register(ctx, st, conn, sc)
			return nil
		})
	}
	_ = g.Wait()
}

// register 重试订阅 sc 直到成功或放弃。池许可只在单次订阅期间持有，
// 退避等待不占用许可。
func (r *Registrar) register(ctx context.Context, st *connState, conn Connection, sc Consumer) {
	key := consumerKey(conn.ID(), sc)
	if r.isRegistered(key) {
		return
	}

	ctx, span := xmetrics.Start(ctx, r.opts.observer, xmetrics.SpanOptions{
		Component: "xconsumer",
		Operation: "register_shadow_consumer",
		Kind:      xmetrics.KindInternal,
		Attrs: []xmetrics.Attr{
			xmetrics.String("topic", sc.Topic),
			xmetrics.String("group", sc.Group),
		},
	})

	retryer := xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewFixedRetry(r.opts.maxAttempts)),
		xretry.WithBackoffPolicy(xretry.NewExponentialBackoff(
			xretry.WithInitialDelay(r.opts.initialDelay),
			xretry.WithMaxDelay(r.opts.maxDelay),
			xretry.WithMultiplier(2),
			xretry.WithJitter(0),
		)),
		xretry.WithOnRetry(func(attempt int, err error) {
			r.opts.logger.WarnContext(ctx, "xconsumer: shadow consumer registration failed, retrying",
				slog.String("key", key),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
		}),
	)
	sub, err := xretry.DoWithResult(ctx, retryer, func(ctx context.Context) (Subscription, error) {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer r.sem.Release(1)
		r.attempts.Add(1)
		s, err := r.sub.Subscribe(ctx, conn, sc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrRegistrationFailed, key, err)
		}
		return s, nil
	})
	span.End(xmetrics.Result{Err: err})

	if err != nil {
		if ctx.Err() != nil {
			r.opts.logger.InfoContext(ctx, "xconsumer: shadow consumer registration cancelled", slog.String("key", key))
			return
		}
		r.failures.Add(1)
		r.opts.logger.ErrorContext(ctx, "xconsumer: shadow consumer registration gave up",
			slog.String("key", key),
			slog.Int("attempts", r.opts.maxAttempts),
			slog.Any("error", err))
		r.opts.reporter.Report(xreport.Record{
			Type:    xreport.TypeMQ,
			Code:    xreport.CodeConsumerRegistration,
			Message: "shadow consumer registration failed: " + key,
			Detail:  err.Error(),
		})
		return
	}
	r.store(ctx, st, key, sub)
}

func (r *Registrar) isRegistered(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.registered[key]
	return ok
}

// store 记录成功的订阅。键已存在、连接已注销或注册器已关闭时关闭新订阅。
func (r *Registrar) store(ctx context.Context, st *connState, key string, sub Subscription) {
	r.mu.Lock()
	_, dup := r.registered[key]
	stale := r.closed || ctx.Err() != nil
	if !dup && !stale {
		r.registered[key] = sub
		st.keys = append(st.keys, key)
	}
	r.mu.Unlock()

	if dup || stale {
		if sub != nil {
			_ = sub.Close()
		}
		return
	}
	r.opts.logger.InfoContext(ctx, "xconsumer: shadow consumer registered", slog.String("key", key))
}

// Deregister 取消连接 connID 正在进行的注册并关闭其影子订阅。
func (r *Registrar) Deregister(connID string) error {
	r.mu.Lock()
	st, ok := r.conns[connID]
	delete(r.conns, connID)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	st.cancel()
	<-st.done
	r.once.Forget(connID)
	return r.closeKeys(st.keys)
}

func (r *Registrar) closeKeys(keys []string) error {
	r.mu.Lock()
	subs := make([]Subscription, 0, len(keys))
	for _, k := range keys {
		if s, ok := r.registered[k]; ok {
			subs = append(subs, s)
			delete(r.registered, k)
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if s != nil {
			errs = append(errs, s.Close())
		}
	}
	return errors.Join(errs...)
}

// Close 取消所有注册任务，等待其退出并关闭全部影子订阅。
func (r *Registrar) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistrarClosed
	}
	r.closed = true
	r.mu.Unlock()

	r.rootCancel()
	r.wg.Wait()

	r.mu.Lock()
	keys := make([]string, 0, len(r.registered))
	for k := range r.registered {
		keys = append(keys, k)
	}
	r.conns = make(map[string]*connState)
	r.mu.Unlock()
	return r.closeKeys(keys)
}

// Registered 返回已注册的影子消费者键，按字典序。
func (r *Registrar) Registered() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.registered))
	for k := range r.registered {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Wait 等待 connID 的注册任务结束，ctx 结束时返回 ctx.Err()。
func (r *Registrar) Wait(ctx context.Context, connID string) error {
	r.mu.Lock()
	st, ok := r.conns[connID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-st.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attempts 返回累计订阅尝试次数。
func (r *Registrar) Attempts() int64 { return r.attempts.Load() }

// Failures 返回放弃的注册数。
func (r *Registrar) Failures() int64 { return r.failures.Load() }

func consumerKey(connID string, c Consumer) string {
	return connID + "/" + c.Target() + "/" + c.Tag
}
