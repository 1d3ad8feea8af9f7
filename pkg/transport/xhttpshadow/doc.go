// Package xhttpshadow HTTP 的影子流量适配。
//
// 服务端：
//
//	h := xhttpshadow.Middleware(classifier, xhttpshadow.WithGate(gate))(mux)
//
// 中间件从请求头（p-pradar-cluster-test 等）与 User-Agent 判定流量，
// 在请求 context 中压入 Web 边界上下文，请求结束时弹出。影子开关关闭时
// 影子请求直接以 503 拒绝；配置了白名单闸门时，不在白名单中的影子请求以 403 拒绝。
//
// 客户端：
//
//	client := &http.Client{Transport: xhttpshadow.NewTransport(nil, xhttpshadow.WithGate(gate))}
//
// 出站请求携带当前调用上下文的子上下文；影子请求的 URL 必须在白名单中。
package xhttpshadow
