// Package xredis 为 go-redis 客户端提供影子路由。
//
// 影子 Redis 有两种形态，由配置中同名条目决定：
//
//   - 配置了 addr：影子流量使用独立实例。客户端从业务客户端的 Options 复制，
//     只替换地址、账号与库号，第一次影子访问时创建。
//   - 未配置 addr：影子流量复用业务实例，Key 为键加上 key_prefix（默认 PT_）。
//
// 影子客户端上挂有隔离钩子，非影子 ctx 发出的命令被拒绝。
//
//	mgr, _ := xredis.New(store, xredis.WithGate(gate))
//	sessions, _ := mgr.Register("sessions", bizClient)
//	key, err := sessions.Key(ctx, "user:42")
//	client, err := sessions.Client(ctx)
//	client.Get(ctx, key)
package xredis
