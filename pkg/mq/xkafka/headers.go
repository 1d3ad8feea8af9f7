package xkafka

import (
	"fmt"
	"slices"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/omeyang/xshadow/pkg/observability/xmetrics"
)

const componentName = "xkafka"

func kafkaAttrs(topic string, shadow bool) []xmetrics.Attr {
	attrs := []xmetrics.Attr{
		xmetrics.String("messaging.system", "kafka"),
		xmetrics.Bool("shadow", shadow),
	}
	if topic != "" {
		attrs = append(attrs, xmetrics.String("messaging.destination", topic))
	}
	return attrs
}

func headersToMap(headers []kafka.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for _, h := range headers {
		result[h.Key] = string(h.Value)
	}
	return result
}

// setHeader 替换同名头，不存在时追加。
func setHeader(headers []kafka.Header, key, value string) []kafka.Header {
	for i := range headers {
		if headers[i].Key == key {
			headers[i].Value = []byte(value)
			return headers
		}
	}
	return append(headers, kafka.Header{Key: key, Value: []byte(value)})
}

func removeHeader(headers []kafka.Header, key string) []kafka.Header {
	return slices.DeleteFunc(headers, func(h kafka.Header) bool { return h.Key == key })
}

func topicOf(msg *kafka.Message) string {
	if msg == nil || msg.TopicPartition.Topic == nil {
		return ""
	}
	return *msg.TopicPartition.Topic
}

func cloneConfig(config *kafka.ConfigMap) (*kafka.ConfigMap, error) {
	cloned := &kafka.ConfigMap{}
	for k, v := range *config {
		if err := cloned.SetKey(k, v); err != nil {
			return nil, fmt.Errorf("xkafka: clone config key %q: %w", k, err)
		}
	}
	return cloned, nil
}
