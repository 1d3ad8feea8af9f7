package xlog

import "errors"

var (
	// ErrUnknownLevel 无法识别的日志级别。
	ErrUnknownLevel = errors.New("xlog: unknown level")
	// ErrUnknownFormat 无法识别的输出格式。
	ErrUnknownFormat = errors.New("xlog: unknown format")
	// ErrNilHandler NewEnrichHandler 的 base 为 nil。
	ErrNilHandler = errors.New("xlog: base handler is nil")
	// ErrEmptyFilename 轮转文件名为空。
	ErrEmptyFilename = errors.New("xlog: empty rotation filename")
)
