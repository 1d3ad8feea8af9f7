package xretry

import (
	"context"
	"time"
)

// RetryPolicy 决定失败后是否继续。
type RetryPolicy interface {
	// MaxAttempts 最大尝试次数（含首次），0 表示不限。
	MaxAttempts() int
	// ShouldRetry attempt 为已失败次数，从 1 开始。
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// BackoffPolicy 计算第 attempt 次失败后的等待时间，attempt 从 1 开始。
type BackoffPolicy interface {
	NextDelay(attempt int) time.Duration
}

// Executor 重试执行器接口，供调用方 mock。
type Executor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
