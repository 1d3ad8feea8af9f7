package xreport

import "errors"

// =============================================================================
// 错误分类
// =============================================================================

var (
	// ErrConfiguration 配置错误：业务资源缺失、影子配置缺失、白名单拒绝、影子开关关闭。
	// 只中止当前操作。
	ErrConfiguration = errors.New("xreport: configuration error")

	// ErrTransientRegistration 影子消费者注册的临时失败（broker 不可用等）。
	ErrTransientRegistration = errors.New("xreport: transient registration error")

	// ErrReentrancy 内部断言失败，属于编程缺陷。
	ErrReentrancy = errors.New("xreport: reentrancy violation")
)

// classedError 是绑定到某个分类上的哨兵错误。
// Error() 只返回自身消息，errors.Is 同时匹配自身与分类。
type classedError struct {
	class error
	msg   string
}

func (e *classedError) Error() string { return e.msg }

func (e *classedError) Is(target error) bool {
	return target == e.class
}

// Classed 创建归属于 class 分类的哨兵错误。
//
// 返回值本身可作为包级哨兵使用：
//
//	var ErrStackEmpty = xreport.Classed(xreport.ErrReentrancy, "xinvoke: pop on empty stack")
//
//	errors.Is(err, ErrStackEmpty)          // true
//	errors.Is(err, xreport.ErrReentrancy)  // true
func Classed(class error, msg string) error {
	return &classedError{class: class, msg: msg}
}

// ClassOf 返回 err 所属的分类，无法识别时返回 nil。
func ClassOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConfiguration):
		return ErrConfiguration
	case errors.Is(err, ErrTransientRegistration):
		return ErrTransientRegistration
	case errors.Is(err, ErrReentrancy):
		return ErrReentrancy
	default:
		return nil
	}
}
