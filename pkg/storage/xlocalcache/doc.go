// Package xlocalcache 为进程内 ristretto 缓存提供影子副本。
//
// 影子流量读写独立的影子缓存，与业务缓存互不可见。影子缓存在第一次影子访问时
// 按配置中同名 caches 条目的容量创建，未配置时使用默认容量。
//
// ristretto 异步写入，Set 之后立即 Get 可能读不到，需要时调用 Wait。
package xlocalcache
