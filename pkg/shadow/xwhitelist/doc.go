// Package xwhitelist 校验影子流量的目标是否已开启影子测试。
//
// 只有判定为影子的调用才会经过白名单。拒绝时调用必须中止并上报 whiteList-0001。
//
// # 条目类型
//
//	KindURL       "/api/orders"           路径等于或位于其下一级
//	              "/api/ord*"             路径前缀
//	              "http://svc/api/*"      带主机时同时比较主机
//	KindRPC       "pkg.OrderService"      接口下所有方法
//	              "pkg.OrderService#Get"  指定方法
//	KindMQTopic   "orders" 或 "orders#"   主题下所有消费组
//	              "orders#billing"        指定主题与消费组
//	              "#billing"              指定消费组（队列），不限主题
//	KindCacheKey  "user:"                 键前缀
//
// # 缓存与刷新
//
// 允许结果按 (代数, 类型, 目标) 缓存在有界 LRU 中。Replace/Add 原子替换整份快照并
// 递增代数，旧缓存随即失效。刷新瞬间仍在进行的 Check 可能使用旧快照，
// 刷新后发起的 Check 一定看到新快照。
package xwhitelist
