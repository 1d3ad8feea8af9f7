// Package xretry 提供影子组件使用的重试执行器。
//
// Retryer 组合 RetryPolicy（是否继续）与 BackoffPolicy（等待多久），
// 底层使用 [avast/retry-go/v5]。等待期间 ctx 取消会立即结束重试。
//
//	r := xretry.NewRetryer(
//	    xretry.WithRetryPolicy(xretry.NewFixedRetry(10)),
//	    xretry.WithBackoffPolicy(xretry.RegistrationBackoff()),
//	)
//	err := r.Do(ctx, subscribe)
//
// NewPermanentError 包装的错误不再重试。
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
