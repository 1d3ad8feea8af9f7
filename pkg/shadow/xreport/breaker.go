package xreport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Sink 外部错误接收端（管理端 HTTP、消息队列等），可能失败。
type Sink interface {
	Send(ctx context.Context, rec Record) error
}

// SinkFunc 函数适配器。
type SinkFunc func(ctx context.Context, rec Record) error

// Send 实现 Sink。
func (f SinkFunc) Send(ctx context.Context, rec Record) error { return f(ctx, rec) }

// 熔断默认参数。
const (
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
	defaultSendTimeout     = 3 * time.Second
)

// BreakerOption 熔断上报端配置选项。
type BreakerOption func(*breakerOptions)

type breakerOptions struct {
	name        string
	failures    uint32
	openTimeout time.Duration
	sendTimeout time.Duration
	logger      *slog.Logger
}

// WithBreakerName 设置熔断器名称，用于日志。
func WithBreakerName(name string) BreakerOption {
	return func(o *breakerOptions) { o.name = name }
}

// WithConsecutiveFailures 设置连续失败多少次后熔断。
func WithConsecutiveFailures(n uint32) BreakerOption {
	return func(o *breakerOptions) {
		if n > 0 {
			o.failures = n
		}
	}
}

// WithOpenTimeout 设置熔断打开后多久进入半开状态。
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(o *breakerOptions) {
		if d > 0 {
			o.openTimeout = d
		}
	}
}

// WithSendTimeout 设置单次 Send 的超时。
func WithSendTimeout(d time.Duration) BreakerOption {
	return func(o *breakerOptions) {
		if d > 0 {
			o.sendTimeout = d
		}
	}
}

// WithBreakerLogger 设置日志器。
func WithBreakerLogger(l *slog.Logger) BreakerOption {
	return func(o *breakerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// BreakerReporter 使用熔断器保护 Sink 的上报端。
//
// Report 同步调用 Sink，通常放在 AsyncReporter 之后使用：
//
//	r := xreport.NewAsyncReporter(xreport.NewBreakerReporter(sink))
//	defer r.Close(ctx)
type BreakerReporter struct {
	sink        Sink
	cb          *gobreaker.CircuitBreaker[struct{}]
	sendTimeout time.Duration
	logger      *slog.Logger
}

// NewBreakerReporter 创建熔断上报端。
func NewBreakerReporter(sink Sink, opts ...BreakerOption) *BreakerReporter {
	o := breakerOptions{
		name:        "xreport-sink",
		failures:    defaultBreakerFailures,
		openTimeout: defaultBreakerTimeout,
		sendTimeout: defaultSendTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	failures := o.failures
	logger := o.logger
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        o.name,
		MaxRequests: 1,
		Timeout:     o.openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("xreport: sink breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &BreakerReporter{
		sink:        sink,
		cb:          cb,
		sendTimeout: o.sendTimeout,
		logger:      o.logger,
	}
}

// Report 实现 Reporter。熔断打开时直接丢弃。
func (r *BreakerReporter) Report(rec Record) {
	rec = rec.normalize()
	_, err := r.cb.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), r.sendTimeout)
		defer cancel()
		return struct{}{}, r.sink.Send(ctx, rec)
	})
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		r.logger.Debug("xreport: sink open, record skipped", slog.String("code", rec.Code))
	default:
		r.logger.Warn("xreport: sink send failed", slog.String("code", rec.Code), slog.Any("error", err))
	}
}

// State 返回熔断器当前状态。
func (r *BreakerReporter) State() gobreaker.State {
	return r.cb.State()
}
