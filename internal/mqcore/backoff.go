package mqcore

import (
	"context"
	"time"

	"github.com/omeyang/xshadow/pkg/resilience/xretry"
)

// ConsumeFunc 消费一次。返回 error 时退避后重试，返回 nil 时重置退避。
type ConsumeFunc func(ctx context.Context) error

// ConsumeLoopOptions 消费循环配置。
type ConsumeLoopOptions struct {
	// Backoff 退避策略，默认 DefaultBackoff()。
	Backoff xretry.BackoffPolicy

	// OnError 每次消费出错时调用，可选。
	OnError func(err error)
}

// ConsumeLoopOption 配置函数。
type ConsumeLoopOption func(*ConsumeLoopOptions)

// WithBackoff 设置退避策略。
func WithBackoff(backoff xretry.BackoffPolicy) ConsumeLoopOption {
	return func(o *ConsumeLoopOptions) {
		if backoff != nil {
			o.Backoff = backoff
		}
	}
}

// WithOnError 设置错误回调。
func WithOnError(onError func(err error)) ConsumeLoopOption {
	return func(o *ConsumeLoopOptions) {
		o.OnError = onError
	}
}

// DefaultBackoff 返回默认退避策略：100ms 起步，上限 30s，乘数 2，抖动 10%。
func DefaultBackoff() xretry.BackoffPolicy {
	return xretry.NewExponentialBackoff()
}

// RunConsumeLoop 循环调用 consume 直到 ctx 取消，返回 ctx.Err()。
func RunConsumeLoop(ctx context.Context, consume ConsumeFunc, opts ...ConsumeLoopOption) error {
	options := &ConsumeLoopOptions{
		Backoff: DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(options)
	}

	attempt := 0
	for ctx.Err() == nil {
		err := consume(ctx)
		if err == nil {
			attempt = 0
			continue
		}
		if options.OnError != nil {
			options.OnError(err)
		}

		attempt++
		t := time.NewTimer(options.Backoff.NextDelay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return ctx.Err()
}
