// Package xmetrics 提供影子组件共用的观测接口（metrics + tracing）。
//
// 组件只依赖 Observer/Span/Attr，默认实现基于 OpenTelemetry。
// OTel 实现会为每个跨度与指标附加当前流量类型（traffic=shadow|production），
// 并在 ctx 中没有 OTel span 时以当前调用上下文的 traceID 作为远端父 span。
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xmediator",
//		Operation: "derive_shadow",
//		Kind:      xmetrics.KindClient,
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// 指标：
//   - xshadow.operation.total
//   - xshadow.operation.duration
//
// 指标属性：component / operation / status / traffic。
package xmetrics
