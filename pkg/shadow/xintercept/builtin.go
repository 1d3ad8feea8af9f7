package xintercept

import (
	"github.com/omeyang/xshadow/pkg/shadow/xmediator"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// Enforce 返回在 Before 中执行白名单检查的拦截器。生产流量直接放行。
func Enforce(gate *xwhitelist.Gate, kind xwhitelist.Kind, targetOf func(a *Advice) string) Interceptor {
	return Hooks{BeforeFunc: func(a *Advice) error {
		return gate.Enforce(a.Context(), targetOf(a), kind)
	}}
}

// Route 返回在 Before 中按当前流量解析 b 的后端并交给 apply 的拦截器。
//
// 影子后端不可用时返回错误中止本次调用，不回退到业务后端。
func Route[T any](b *xmediator.Binding[T], apply func(a *Advice, backend T)) Interceptor {
	return Hooks{BeforeFunc: func(a *Advice) error {
		backend, err := b.ResolveContext(a.Context())
		if err != nil {
			return err
		}
		apply(a, backend)
		return nil
	}}
}
