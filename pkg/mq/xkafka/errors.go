package xkafka

import (
	"errors"

	"github.com/omeyang/xshadow/internal/mqcore"
)

// 重导出共享错误。
var (
	// ErrNilClient 传入的客户端为空。
	ErrNilClient = mqcore.ErrNilClient

	// ErrNilMessage 传入的消息为空。
	ErrNilMessage = mqcore.ErrNilMessage

	// ErrNilHandler 传入的处理函数为空。
	ErrNilHandler = mqcore.ErrNilHandler

	// ErrClosed 客户端已关闭。
	ErrClosed = mqcore.ErrClosed
)

// Kafka 特有错误。
var (
	// ErrNilConfig 传入的配置为空。
	ErrNilConfig = errors.New("xkafka: nil config")

	// ErrEmptyTopics 订阅的主题列表为空。
	ErrEmptyTopics = errors.New("xkafka: empty topics")

	// ErrEmptyTopic 消息未指定主题。
	ErrEmptyTopic = errors.New("xkafka: message has no topic")

	// ErrEmptyGroup 影子消费者没有消费组。
	ErrEmptyGroup = errors.New("xkafka: empty consumer group")

	// ErrFlushTimeout 关闭时仍有消息未发出。
	ErrFlushTimeout = errors.New("xkafka: flush timeout")
)
