package xreport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrReporterClosed 上报端已关闭。
var ErrReporterClosed = errors.New("xreport: reporter closed")

// defaultQueueSize 默认异步队列容量。
const defaultQueueSize = 1024

// AsyncOption 异步上报端配置选项。
type AsyncOption func(*asyncOptions)

type asyncOptions struct {
	queueSize int
	logger    *slog.Logger
}

// WithQueueSize 设置队列容量，非正数时忽略。
func WithQueueSize(n int) AsyncOption {
	return func(o *asyncOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithAsyncLogger 设置丢弃记录时使用的日志器。
func WithAsyncLogger(l *slog.Logger) AsyncOption {
	return func(o *asyncOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// AsyncReporter 异步上报端。
//
// Report 只做一次非阻塞入队，队列满或已关闭时丢弃记录并计数。
// 单个后台 goroutine 按入队顺序把记录交给下游。
type AsyncReporter struct {
	next    Reporter
	queue   chan Record
	logger  *slog.Logger
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncReporter 创建异步上报端并启动后台 goroutine，调用方负责 Close。
func NewAsyncReporter(next Reporter, opts ...AsyncOption) *AsyncReporter {
	o := asyncOptions{queueSize: defaultQueueSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	r := &AsyncReporter{
		next:   OrNoop(next),
		queue:  make(chan Record, o.queueSize),
		logger: o.logger,
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Report 实现 Reporter。
func (r *AsyncReporter) Report(rec Record) {
	rec = rec.normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(rec)
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.drop(rec)
	}
}

func (r *AsyncReporter) drop(rec Record) {
	n := r.dropped.Add(1)
	// 只在 2 的幂次时打印，避免队列满时刷屏
	if n&(n-1) == 0 {
		r.logger.Warn("xreport: record dropped",
			slog.String("code", rec.Code),
			slog.Uint64("dropped_total", n))
	}
}

// Dropped 返回累计丢弃的记录数。
func (r *AsyncReporter) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *AsyncReporter) loop() {
	defer close(r.done)
	for rec := range r.queue {
		r.deliver(rec)
	}
}

func (r *AsyncReporter) deliver(rec Record) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("xreport: downstream reporter panicked",
				slog.Any("panic", p), slog.String("code", rec.Code))
		}
	}()
	r.next.Report(rec)
}

// Close 停止接收新记录，等待队列中已有记录投递完成或 ctx 结束。
// 重复调用返回 ErrReporterClosed。
func (r *AsyncReporter) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrReporterClosed
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
