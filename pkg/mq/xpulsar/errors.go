package xpulsar

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

// Pulsar 特有错误。
var (
	// ErrNilProducer 传入的生产者为空。
	ErrNilProducer = errors.New("xpulsar: nil producer")

	// ErrNilConsumer 传入的消费者为空。
	ErrNilConsumer = errors.New("xpulsar: nil consumer")

	// ErrEmptyTopic 未指定主题。
	ErrEmptyTopic = errors.New("xpulsar: empty topic")

	// ErrEmptySubscription 未指定订阅名。
	ErrEmptySubscription = errors.New("xpulsar: empty subscription")
)
