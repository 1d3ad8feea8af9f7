package xmongo

import "errors"

var (
	// ErrNilProvider 没有配置来源。
	ErrNilProvider = errors.New("xmongo: nil config provider")

	// ErrNilDatabase 业务数据库为空。
	ErrNilDatabase = errors.New("xmongo: nil business database")

	// ErrEmptyName 逻辑名称为空。
	ErrEmptyName = errors.New("xmongo: empty name")
)
