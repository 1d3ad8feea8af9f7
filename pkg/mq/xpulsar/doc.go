// Package xpulsar 为 pulsar-client-go 提供影子流量适配。
//
// Pulsar 的生产者绑定单个主题，Producer 因此持有业务生产者与按需创建的影子生产者
// （xmediator.Binding），影子上下文中的消息发往影子主题，调用上下文写入消息属性。
//
// Consumer 按消息属性、主题与订阅名判定每条消息；Subscriber 实现
// xconsumer.Subscriber，为业务消费者建立影子订阅。
package xpulsar
