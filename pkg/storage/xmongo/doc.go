// Package xmongo 为 mongo-driver v2 的数据库句柄提供影子路由。
//
// 影子 MongoDB 有两种形态，由配置中同名条目决定：
//
//   - 配置了 uri：影子流量连接独立集群，第一次影子访问时建立连接并 Ping。
//   - 未配置 uri：影子流量复用业务连接，访问 database 指定的库，
//     未指定时访问业务库名加 PT_ 前缀的影子库。
//
// 配置刷新后 ResetAll 断开独立集群的连接，下一次影子访问重新建立。
//
//	mgr, _ := xmongo.New(store)
//	orders, _ := mgr.Register("orders", client.Database("orders"))
//	coll, err := orders.Collection(ctx, "items")
package xmongo
