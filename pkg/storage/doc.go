// Package storage 提供存储后端的影子路由子包。
//
// 子包列表：
//   - xdatasource: database/sql 连接池，独立影子库或影子表
//   - xredis: go-redis 客户端，独立影子实例或键前缀隔离
//   - xmongo: mongo-driver 数据库句柄，独立影子集群或影子库
//   - xlocalcache: ristretto 进程内缓存的影子副本
//
// 各子包按名称在影子配置中查找对应条目，在第一次影子访问时派生影子后端，
// 实现 xshadowconf.Resetter，配置刷新后丢弃已派生的后端。
// 影子后端不可用时返回错误，不会回退到业务后端。
package storage
