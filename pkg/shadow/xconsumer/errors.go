package xconsumer

import (
	"errors"

	"github.com/omeyang/xshadow/pkg/shadow/xreport"
)

var (
	// ErrRegistrationFailed 影子消费者订阅失败（可重试）。
	ErrRegistrationFailed = xreport.Classed(xreport.ErrTransientRegistration, "xconsumer: shadow consumer registration failed")

	// ErrRegistrarClosed 注册器已关闭。
	ErrRegistrarClosed = errors.New("xconsumer: registrar closed")

	// ErrNilSubscriber 未提供 Subscriber。
	ErrNilSubscriber = errors.New("xconsumer: nil subscriber")

	// ErrNilConnection 连接为 nil 或 ID 为空。
	ErrNilConnection = errors.New("xconsumer: nil connection")
)
