// Package xintercept 定义调用拦截契约。
//
// 每次被拦截的调用以 Advice 表示（目标对象、方法名、参数），依次经过
// Interceptor 的 Before、AfterReturn、AfterException 钩子。Before 可以替换参数
// （ReplaceArgs）或直接给出返回值跳过原调用（ShortCircuit），返回错误则中止本次调用。
//
// Scoped 用 xscope 包装拦截器：嵌套调用中内层的同一拦截点被跳过，
// after 钩子只在 before 实际进入时执行。
//
// 基本用法：
//
//	p := xintercept.New(
//	    xintercept.Scoped("jdbc", routeDataSource, xscope.Boundary),
//	    xintercept.Enforce(gate, xwhitelist.KindURL, urlOf),
//	)
//	v, err := p.Invoke(ctx, client, "Do", []any{req}, call)
package xintercept
