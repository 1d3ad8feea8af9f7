package xclassify

import (
	"errors"

	"github.com/omeyang/xshadow/pkg/shadow/xreport"
)

// ErrShadowDisabled 影子开关关闭时收到影子流量。
var ErrShadowDisabled = errors.New("xclassify: shadow mode disabled")

// ShadowDisabledError 影子开关关闭时收到影子流量的详细错误。
type ShadowDisabledError struct {
	// Source 判定为影子的依据。
	Source Source
	// Code 关闭开关时记录的错误码。
	Code string
	// Reason 关闭开关时记录的原因。
	Reason string
}

func (e *ShadowDisabledError) Error() string {
	msg := "xclassify: shadow traffic received while shadow mode disabled (by " + e.Source.String() + ")"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is 支持 errors.Is(err, ErrShadowDisabled) 与 errors.Is(err, xreport.ErrConfiguration)。
func (e *ShadowDisabledError) Is(target error) bool {
	return target == ErrShadowDisabled || target == xreport.ErrConfiguration
}
