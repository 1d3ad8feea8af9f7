package xdatasource

import "errors"

var (
	// ErrNilProvider 没有配置来源。
	ErrNilProvider = errors.New("xdatasource: nil config provider")

	// ErrNilDB 业务连接池为空。
	ErrNilDB = errors.New("xdatasource: nil business db")

	// ErrEmptyName 数据源名称为空。
	ErrEmptyName = errors.New("xdatasource: empty datasource name")

	// ErrEmptyDriver 独立影子库未指定驱动。
	ErrEmptyDriver = errors.New("xdatasource: empty shadow driver")
)
