package mqcore

import "errors"

// 共享错误，由 xkafka 与 xpulsar 重导出。
var (
	// ErrNilClient 传入的客户端为空。
	ErrNilClient = errors.New("mq: nil client")

	// ErrNilMessage 传入的消息为空。
	ErrNilMessage = errors.New("mq: nil message")

	// ErrNilHandler 传入的处理函数为空。
	ErrNilHandler = errors.New("mq: nil handler")

	// ErrClosed 客户端已关闭。
	ErrClosed = errors.New("mq: client closed")
)
