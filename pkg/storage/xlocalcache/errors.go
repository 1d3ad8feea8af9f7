package xlocalcache

import "errors"

var (
	// ErrNilProvider 没有配置来源。
	ErrNilProvider = errors.New("xlocalcache: nil config provider")

	// ErrNilCache 业务缓存为空。
	ErrNilCache = errors.New("xlocalcache: nil business cache")

	// ErrEmptyName 缓存名称为空。
	ErrEmptyName = errors.New("xlocalcache: empty name")
)
