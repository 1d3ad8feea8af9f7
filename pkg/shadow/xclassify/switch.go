package xclassify

import (
	"sync/atomic"
	"time"
)

// Switch 影子模式全局开关。零值不可用，请使用 NewSwitch。
//
// 读写均为原子操作，关闭时保留最近一次的错误码与原因。
type Switch struct {
	state atomic.Pointer[switchState]
}

type switchState struct {
	enabled   bool
	code      string
	reason    string
	changedAt time.Time
}

// NewSwitch 创建开关。
func NewSwitch(enabled bool) *Switch {
	s := &Switch{}
	s.state.Store(&switchState{enabled: enabled, changedAt: time.Now()})
	return s
}

// Enabled 报告影子模式是否开启。
func (s *Switch) Enabled() bool {
	return s.state.Load().enabled
}

// Enable 开启影子模式，清除关闭原因。
func (s *Switch) Enable() {
	s.state.Store(&switchState{enabled: true, changedAt: time.Now()})
}

// Disable 关闭影子模式并记录原因。
func (s *Switch) Disable(code, reason string) {
	s.state.Store(&switchState{code: code, reason: reason, changedAt: time.Now()})
}

// Set 按配置设置开关，关闭时不记录原因。
func (s *Switch) Set(enabled bool) {
	if cur := s.state.Load(); cur.enabled == enabled {
		return
	}
	if enabled {
		s.Enable()
		return
	}
	s.Disable("", "disabled by config")
}

// Reason 返回最近一次关闭的错误码与原因，开启状态下为空。
func (s *Switch) Reason() (code, reason string) {
	st := s.state.Load()
	return st.code, st.reason
}

// ChangedAt 返回最近一次状态变化的时间。
func (s *Switch) ChangedAt() time.Time {
	return s.state.Load().changedAt
}
