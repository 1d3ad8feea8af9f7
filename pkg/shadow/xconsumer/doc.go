// Package xconsumer 为业务消费者建立并行的影子消费者。
//
// 每个物理连接（以 Connection.ID 标识）最多处理一次。对连接上的每个业务消费者：
//
//   - 跳过本身就是影子消费者的条目（主题或标签带影子前缀）
//   - 按名称规则得到影子主题、消费组与标签
//   - 业务主题不在 MQ 白名单中时跳过（记录日志，不重试）
//   - 通过 Subscriber 以相同的处理函数、确认模式、预取数、独占标记与参数订阅影子主题
//
// 注册在有界后台池中执行，不占用消息投递路径。失败时按指数退避重试
// （默认从 1 秒翻倍，上限 5 分钟，最多 10 次），仍失败则上报 MQ-0001 并放弃。
// 同一消费者只会被成功注册一次。
//
// 影子消费者的处理函数总是运行在影子调用上下文中，与消息头无关。
//
// Deregister 取消某个连接正在进行的重试并关闭其影子订阅；Close 取消全部任务并等待退出。
package xconsumer
