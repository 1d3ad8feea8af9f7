// Package xmediator 为每个逻辑资源维护业务与影子两套后端，并按流量类型选择。
//
// Binding[T] 持有业务后端（创建时给定）与影子后端（首次影子访问时派生）：
//
//   - 生产流量：直接返回业务后端，不做任何派生或白名单检查
//   - 影子流量：原子读取影子后端；为空时加锁二次检查后派生并保存，
//     并发的首次访问只会构造一个影子后端
//   - 派生失败返回 *ShadowUnavailableError，绝不退回业务后端
//
// 影子表模式（WithSameBackend）下影子流量复用业务后端，由调用点负责改写表名或键名。
//
// MatchName 按声明顺序匹配影子配置：先精确匹配，再做冒号后缀匹配（jndi:foo 与 foo），
// 配置键形如 name|user 时只比较 name 部分。
package xmediator
