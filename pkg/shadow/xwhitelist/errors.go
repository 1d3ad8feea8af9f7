package xwhitelist

import (
	"errors"

	"github.com/omeyang/xshadow/pkg/shadow/xreport"
)

var (
	// ErrDenied 目标不在白名单中。
	ErrDenied = errors.New("xwhitelist: target not in whitelist")

	// ErrInvalidEntry 白名单条目无效。
	ErrInvalidEntry = errors.New("xwhitelist: invalid entry")

	// ErrInvalidCacheSize 缓存容量无效。
	ErrInvalidCacheSize = errors.New("xwhitelist: invalid cache size")
)

// DeniedError 白名单拒绝的详细错误。
type DeniedError struct {
	Target string
	Kind   Kind
	Reason string
}

func (e *DeniedError) Error() string {
	return "xwhitelist: " + e.Kind.String() + " [" + e.Target + "] is not allowed in whitelist"
}

// Is 支持 errors.Is(err, ErrDenied) 与 errors.Is(err, xreport.ErrConfiguration)。
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied || target == xreport.ErrConfiguration
}
