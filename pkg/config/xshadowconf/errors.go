package xshadowconf

import "errors"

// =============================================================================
// 加载错误
// =============================================================================

var (
	// ErrEmptyPath 配置文件路径为空。
	ErrEmptyPath = errors.New("xshadowconf: empty path")

	// ErrUnsupportedFormat 不支持的配置格式。
	ErrUnsupportedFormat = errors.New("xshadowconf: unsupported format")

	// ErrParseFailed 配置解析失败。
	ErrParseFailed = errors.New("xshadowconf: parse failed")

	// ErrInvalidDocument 配置文档校验失败。
	ErrInvalidDocument = errors.New("xshadowconf: invalid document")
)

// =============================================================================
// 刷新来源错误
// =============================================================================

var (
	// ErrNilStore Store 为 nil。
	ErrNilStore = errors.New("xshadowconf: nil store")

	// ErrNilClient etcd 客户端为 nil。
	ErrNilClient = errors.New("xshadowconf: nil etcd client")

	// ErrEmptyKey etcd 键为空。
	ErrEmptyKey = errors.New("xshadowconf: empty etcd key")

	// ErrNilFetch 拉取函数为 nil。
	ErrNilFetch = errors.New("xshadowconf: nil fetch func")

	// ErrKeyNotFound etcd 中不存在配置键。
	ErrKeyNotFound = errors.New("xshadowconf: key not found")

	// ErrAlreadyStarted 刷新来源已启动。
	ErrAlreadyStarted = errors.New("xshadowconf: already started")
)
