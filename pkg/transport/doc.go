// Package transport 入站与出站调用的影子传播适配。
//
//   - xhttpshadow: HTTP 服务端中间件与客户端 RoundTripper
//   - xgrpcshadow: gRPC 服务端与客户端拦截器
//
// 服务端在入站边界判定流量并压入调用上下文；客户端对影子流量检查白名单，
// 并把调用上下文写入出站请求头。
package transport
