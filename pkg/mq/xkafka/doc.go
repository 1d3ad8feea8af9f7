// Package xkafka 为 confluent-kafka-go 提供影子流量适配。
//
// 生产端：Producer 在影子上下文中把业务主题改写为影子主题，先做 MQ 白名单检查，
// 并把调用上下文写入消息头。
//
// 消费端：Consumer 按消息头、主题与消费组判定每条消息，处理函数在对应的
// 调用上下文中执行，处理成功后才存储偏移量。影子开关关闭时到达的影子消息被丢弃。
//
// Subscriber 实现 xconsumer.Subscriber，为每个业务消费者建立独立消费组的影子消费者：
//
//	sub, _ := xkafka.NewSubscriber(&kafka.ConfigMap{"bootstrap.servers": brokers},
//	    xkafka.WithClassifier(classifier))
//	reg, _ := xconsumer.NewRegistrar(sub, xconsumer.WithClassifier(classifier))
//	_ = reg.RegisterShadowConsumers(ctx, xkafka.NewConnection("orders-app", consumers...))
package xkafka
