package xredis

import "errors"

var (
	// ErrNilProvider 没有配置来源。
	ErrNilProvider = errors.New("xredis: nil config provider")

	// ErrNilClient 业务客户端为空。
	ErrNilClient = errors.New("xredis: nil business client")

	// ErrEmptyName 逻辑名称为空。
	ErrEmptyName = errors.New("xredis: empty name")

	// ErrProductionOnShadow 非影子 ctx 在影子客户端上执行命令。
	ErrProductionOnShadow = errors.New("xredis: production command on shadow client")
)
