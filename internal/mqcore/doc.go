// Package mqcore 是 xkafka 与 xpulsar 共用的消息队列内核。
//
// 内容：
//   - 消息头与调用上下文之间的传播（Propagator）
//   - 投递时的影子判定（Deliver），出站时的主题改写（Route）
//   - 带退避的消费循环（RunConsumeLoop）
//   - 共享错误
package mqcore
