package xscope

import "github.com/omeyang/xshadow/pkg/shadow/xreport"

// ErrLeaveWithoutEnter Leave 没有对应的 TryEnter。
var ErrLeaveWithoutEnter = xreport.Classed(xreport.ErrReentrancy, "xscope: leave without enter")
