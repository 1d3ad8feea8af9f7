package xmediator

import (
	"errors"

	"github.com/omeyang/xshadow/pkg/shadow/xreport"
)

// =============================================================================
// 错误定义
// =============================================================================

var (
	// ErrBusinessMissing 绑定没有业务后端。
	ErrBusinessMissing = xreport.Classed(xreport.ErrConfiguration, "xmediator: business backend missing")

	// ErrNoShadowConfig 找不到与业务后端匹配的影子配置。
	ErrNoShadowConfig = xreport.Classed(xreport.ErrConfiguration, "xmediator: no matching shadow config")

	// ErrShadowUnavailable 影子后端不可用。
	ErrShadowUnavailable = errors.New("xmediator: shadow backend unavailable")

	// ErrBindingClosed 绑定已关闭。
	ErrBindingClosed = errors.New("xmediator: binding closed")

	// ErrNilDeriver 未提供影子派生函数。
	ErrNilDeriver = errors.New("xmediator: nil deriver")
)

// ShadowUnavailableError 影子后端派生失败。
type ShadowUnavailableError struct {
	// Key 绑定的逻辑键。
	Key string
	// BusinessIdentity 业务后端标识（URL、地址等），用于排查。
	BusinessIdentity string
	// Err 派生失败的原因。
	Err error
}

func (e *ShadowUnavailableError) Error() string {
	msg := "xmediator: shadow backend unavailable for " + e.Key
	if e.BusinessIdentity != "" {
		msg += " (business " + e.BusinessIdentity + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 返回派生失败的原因。
func (e *ShadowUnavailableError) Unwrap() error { return e.Err }

// Is 支持 errors.Is(err, ErrShadowUnavailable) 与 errors.Is(err, xreport.ErrConfiguration)。
func (e *ShadowUnavailableError) Is(target error) bool {
	return target == ErrShadowUnavailable || target == xreport.ErrConfiguration
}
