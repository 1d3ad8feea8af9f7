// Package xdatasource 为 database/sql 连接池提供影子数据源路由。
//
// 业务连接池在 Manager 上按数据源名称注册，影子流量第一次访问时按当前配置中
// 匹配的影子数据源打开影子连接池，之后复用同一个 *sql.DB。配置刷新时
// ResetAll 关闭已打开的影子连接池，下一次影子访问按新配置重新打开。
//
//	mgr, _ := xdatasource.New(store)
//	users := mgr.Register("jdbc/users", businessDB)
//	db, err := users.DB(ctx) // 影子上下文中返回影子连接池
//
// 影子数据源配置为 shadow_table 时，影子流量复用业务连接池，
// 由 Table 把表名改写为影子表。
//
// 已注册的驱动：clickhouse（clickhouse-go/v2）。其他驱动由应用自行导入。
package xdatasource
