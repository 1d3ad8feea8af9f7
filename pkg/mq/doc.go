// Package mq 提供消息队列的影子流量适配子包。
//
// 子包列表：
//   - xkafka: confluent-kafka-go 适配，影子主题改写、消息判定、影子消费者
//   - xpulsar: pulsar-client-go 适配，按需创建影子生产者、影子订阅
//
// 内部包：
//   - internal/mqcore: 消息头传播、投递判定与消费循环
//
// 约定：
//   - 影子上下文中发出的消息总是发往影子主题，调用上下文随消息头传播
//   - 消费端按消息头、主题与消费组判定，处理函数在对应的调用上下文中执行
//   - 影子开关关闭时到达的影子消息被确认并丢弃
package mq
